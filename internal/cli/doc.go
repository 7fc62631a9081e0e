// Package cli реализует команды switchover.
//
// # Обзор
//
// CLI работает с планом развёртывания напрямую: сам выполняет шаги, читает и
// пишет запись состояния. RabbitMQ и Postgres подключаются только если заданы
// (--rabbitmq-url / RABBITMQ_URL, --state-db / STATE_DB_URL).
//
// # Ключевые компоненты
//
// ## Env
//
// Общие настройки команд: PersistentFlags поверх переменных окружения.
// Env открывает внешние ресурсы команды и собирает orchestrator.Config:
//
//	env := cli.EnvFromOS()
//	d, err := env.openDeps(ctx, logger, "")
//	orch := orchestrator.New(d.orchestratorConfig(env, os.Stdout, os.Stderr))
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// В режиме --json вывод шагов развёртывания тоже уходит в stderr, чтобы
// stdout оставался валидным JSON: switchover deploy plan.yaml --json | jq .
//
// ## Commands
//
//   - deploy PLAN     — одно развёртывание
//   - status PLAN     — запись состояния и следующий целевой слот
//   - validate PLAN   — проверка плана без выполнения
//   - agent --plan    — развёртывания по расписанию и по запросам из очереди
//   - trigger [PLAN]  — запрос развёртывания у агента
//   - events          — поток событий развёртывания
//   - history         — прошлые run из Postgres
//
// Каждая команда создаётся фабричной функцией (NewDeployCmd и т.д.),
// принимающей envFn и outputFn — замыкания, которые читают PersistentFlags
// уже после их парсинга.
package cli
