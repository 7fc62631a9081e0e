// Package orchestrator выполняет развёртывания blue/green.
//
// Один run:
//
//	selecting → preparing → (prepare-failed | checked) → activating → (activate-failed | active)
//
//   - selecting: SelectSlots выбирает target (green, если blue active, иначе blue)
//   - preparing: target = preparing, запись; фазы prepare, check
//   - activating: фазы activate, verify
//   - active: target = active, бывший active слот = backup, запись; фаза done
//
// Ошибка шага превращается в статус только на границах групп фаз
// (prepare+check, activate+verify). При ошибке активации оркестратор
// откатывается на другой слот, если тот active или backup: заново выполняет
// его activate, verify, done.
//
// Ошибки отката и фазы done не записываются в статус и возвращаются
// вызывающему (ErrRollbackFailed, ErrDoneFailed).
//
// В режиме агента Orchestrator также принимает запросы на развёртывание из
// RabbitMQ; все run одного Orchestrator идут строго по одному.
package orchestrator
