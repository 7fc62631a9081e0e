package orchestrator

import (
	"log/slog"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/statestore"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// deployment — состояние одного run в памяти.
//
// Создаётся после открытия записи состояния и живёт до конца run.
// Содержит:
//   - Run (идентификатор, выбранные слоты, итог)
//   - План, загруженный один раз на run
//   - Открытую запись состояния (снимок + базовое содержимое для CAS)
//   - Логгер, обогащённый run_id
type deployment struct {
	run    *domain.Run
	plan   *domain.Plan
	store  *statestore.Store
	logger *slog.Logger
}

// newDeployment создаёт deployment и выбирает слоты по текущему состоянию.
func newDeployment(run *domain.Run, plan *domain.Plan, store *statestore.Store, logger *slog.Logger) *deployment {
	run.Target, run.Other = SelectSlots(store.State())

	return &deployment{
		run:    run,
		plan:   plan,
		store:  store,
		logger: logger,
	}
}

// target возвращает целевой слот.
func (d *deployment) target() domain.Slot {
	return d.run.Target
}

// other возвращает второй слот.
func (d *deployment) other() domain.Slot {
	return d.run.Other
}

// status возвращает статус слота из снимка.
func (d *deployment) status(slot domain.Slot) domain.SlotStatus {
	return d.store.Status(slot)
}

// setStatus меняет статус слота в снимке (без записи).
func (d *deployment) setStatus(slot domain.Slot, status domain.SlotStatus) {
	previous := d.store.Status(slot)
	d.store.SetStatus(slot, status)

	telemetry.WithSlot(d.logger, slot.String()).Info("slot status changed",
		"from", previous,
		"to", status,
	)
}

// rollbackTarget возвращает слот для отката, если он есть.
//
// Откат возможен, только если второй слот в записи active или backup.
func (d *deployment) rollbackTarget() (domain.Slot, bool) {
	other := d.other()
	return other, d.status(other).IsRollbackTarget()
}
