// Package scheduler запускает развёртывания агента по расписанию.
//
// Структура:
//   - scheduler.go — Scheduler (Start, Tick)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedule: domain.Schedule{CronExpr: "0 3 * * *", Timezone: "Europe/Moscow"},
//	    Trigger:  orch,
//	    Logger:   logger,
//	})
//
//	go sched.Start(ctx)
//
// Scheduler не держит собственной блокировки: все run сериализует
// Orchestrator, поэтому запуск по расписанию и запрос из очереди никогда не
// выполняются одновременно.
package scheduler
