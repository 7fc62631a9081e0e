package orchestrator

import (
	"errors"
	"fmt"

	"github.com/shaiso/Switchover/internal/domain"
)

// Ошибки оркестратора.
var (
	// ErrDeployFailed — группа фаз целевого слота упала; статус ошибки записан.
	ErrDeployFailed = errors.New("deployment failed")

	// ErrRollbackFailed — откат на другой слот упал. Статус другого слота
	// не меняется: в записи остаётся activate-failed целевого слота.
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrDoneFailed — фаза done упала после того, как слот уже записан active.
	ErrDoneFailed = errors.New("done phase failed")

	// ErrNoPlan — запрос без плана, а у агента план не задан.
	ErrNoPlan = errors.New("no plan configured")

	// ErrForeignPlan — запрос называет план, отличный от плана агента.
	ErrForeignPlan = errors.New("plan is not served by this agent")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)

// DeployError — итог неуспешного run, после того как статус ошибки записан.
//
// errors.Is(err, ErrDeployFailed) == true; исходная ошибка шага доступна
// через errors.As (например, *steps.CommandError).
type DeployError struct {
	// Slot — целевой слот run.
	Slot domain.Slot

	// Status — записанный статус: prepare-failed или activate-failed.
	Status domain.SlotStatus

	// RolledBack — другой слот успешно активирован заново.
	RolledBack bool

	// RollbackSlot — слот отката (пусто, если отката не было).
	RollbackSlot domain.Slot

	// Err — ошибка шага, вызвавшая переход.
	Err error
}

// Error реализует интерфейс error.
func (e *DeployError) Error() string {
	msg := fmt.Sprintf("deploy %s: %s", e.Slot, e.Status)
	if e.RolledBack {
		msg += fmt.Sprintf(" (rolled back to %s)", e.RollbackSlot)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap возвращает исходную ошибку.
func (e *DeployError) Unwrap() error {
	return e.Err
}

// Is позволяет проверять errors.Is(err, ErrDeployFailed).
func (e *DeployError) Is(target error) bool {
	return target == ErrDeployFailed
}
