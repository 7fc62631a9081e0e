// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Все команды используют единый формат логирования.
// Агент экспортирует метрики на /metrics endpoint, CLI может
// записать их в textfile для node_exporter.
package telemetry
