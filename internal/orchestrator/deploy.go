package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/engine"
	"github.com/shaiso/Switchover/internal/statestore"
	"github.com/shaiso/Switchover/internal/steps"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// Группы фаз. Ошибка любой фазы группы обрабатывается одинаково.
var (
	prepareGroup  = []domain.Phase{domain.PhasePrepare, domain.PhaseCheck}
	activateGroup = []domain.Phase{domain.PhaseActivate, domain.PhaseVerify}
	rollbackGroup = []domain.Phase{domain.PhaseActivate, domain.PhaseVerify, domain.PhaseDone}
	doneGroup     = []domain.Phase{domain.PhaseDone}
)

// RunDeploy загружает план и выполняет одно развёртывание.
//
// Ошибка загрузки плана возвращается до любого изменения состояния; run
// тогда nil.
func (o *Orchestrator) RunDeploy(ctx context.Context, planPath string) (*domain.Run, error) {
	plan, err := engine.LoadPlanFile(planPath)
	if err != nil {
		return nil, err
	}
	return o.Deploy(ctx, plan)
}

// Deploy выполняет одно развёртывание по плану.
//
// Возвращает run всегда. Ошибка:
//   - nil — целевой слот active, done выполнен
//   - *DeployError (ErrDeployFailed) — prepare/check или activate/verify упали,
//     статус ошибки записан (после отката, если он был успешен)
//   - ErrRollbackFailed, ErrDoneFailed — ошибка отката или фазы done
//   - ErrStateConflict — запись изменена извне, run прерван
//   - ошибка плана (engine.IsPlanError) — состояние не менялось
func (o *Orchestrator) Deploy(ctx context.Context, plan *domain.Plan) (*domain.Run, error) {
	o.deployMu.Lock()
	defer o.deployMu.Unlock()

	run := domain.NewRun(plan.Source)
	logger := telemetry.WithRunID(o.logger, run.ID.String())

	// Весь план проверяется до первой записи состояния.
	if err := engine.Validate(plan); err != nil {
		run.Finish(domain.OutcomeAborted, err)
		logger.Error("invalid plan", "error", err)
		return run, err
	}

	record, err := o.records(ctx, plan)
	if err != nil {
		err = fmt.Errorf("open state record: %w", err)
		run.Finish(domain.OutcomeAborted, err)
		return run, err
	}

	store, err := statestore.Open(ctx, record)
	if err != nil {
		err = fmt.Errorf("open state: %w", err)
		run.Finish(domain.OutcomeAborted, err)
		return run, err
	}

	d := newDeployment(run, plan, store, logger)

	logger.Info("deploy started",
		"plan", plan.Source,
		"state", store.Location(),
		"target", d.target(),
		"other", d.other(),
	)
	o.events.DeployStarted(ctx, run)

	outcome, err := o.execute(ctx, d)

	run.Finish(outcome, err)
	o.metrics.ObserveRun(d.target().String(), string(outcome))
	o.events.DeployFinished(ctx, run)
	o.saveRun(ctx, run)
	o.setLastRun(run)

	if err != nil {
		logger.Error("deploy finished", "outcome", outcome, "duration", run.Duration(), "error", err)
	} else {
		logger.Info("deploy finished", "outcome", outcome, "duration", run.Duration())
	}

	return run, err
}

// execute — машина состояний одного run:
//
//	preparing → (prepare-failed | checked) → activating → (activate-failed | active)
func (o *Orchestrator) execute(ctx context.Context, d *deployment) (domain.Outcome, error) {
	target := d.target()

	// preparing
	d.setStatus(target, domain.SlotStatusPreparing)
	if err := o.flush(ctx, d); err != nil {
		return domain.OutcomeAborted, err
	}

	if err := o.runGroup(ctx, d, target, prepareGroup); err != nil {
		if engine.IsPlanError(err) {
			return domain.OutcomeAborted, err
		}

		d.setStatus(target, domain.SlotStatusPrepareFailed)
		if ferr := o.flush(ctx, d); ferr != nil {
			return domain.OutcomeAborted, ferr
		}
		return domain.OutcomePrepareFailed, &DeployError{
			Slot:   target,
			Status: domain.SlotStatusPrepareFailed,
			Err:    err,
		}
	}

	// activating
	if err := o.runGroup(ctx, d, target, activateGroup); err != nil {
		if engine.IsPlanError(err) {
			return domain.OutcomeAborted, err
		}
		return o.activationFailed(ctx, d, err)
	}

	// active
	other := d.other()
	if d.status(other) == domain.SlotStatusActive {
		d.setStatus(other, domain.SlotStatusBackup)
	}
	d.setStatus(target, domain.SlotStatusActive)
	if err := o.flush(ctx, d); err != nil {
		return domain.OutcomeAborted, err
	}
	o.metrics.MarkActivated(target.String(), time.Now())

	// Статус active уже записан: ошибка done его не меняет.
	if err := o.runGroup(ctx, d, target, doneGroup); err != nil {
		return domain.OutcomeAborted, fmt.Errorf("%w: %s: %w", ErrDoneFailed, target, err)
	}

	return domain.OutcomeActive, nil
}

// activationFailed записывает activate-failed и откатывается на другой слот,
// если тот был active или backup.
func (o *Orchestrator) activationFailed(ctx context.Context, d *deployment, cause error) (domain.Outcome, error) {
	target := d.target()

	d.setStatus(target, domain.SlotStatusActivateFailed)
	if err := o.flush(ctx, d); err != nil {
		return domain.OutcomeAborted, err
	}

	failed := &DeployError{
		Slot:   target,
		Status: domain.SlotStatusActivateFailed,
		Err:    cause,
	}

	rollback, ok := d.rollbackTarget()
	if !ok {
		d.logger.Warn("no rollback target",
			"slot", rollback,
			"status", d.status(rollback),
		)
		return domain.OutcomeActivateFailed, failed
	}

	d.logger.Warn("rolling back", "to", rollback, "status", d.status(rollback))

	// Ошибка отката не превращается в статус: в записи остаётся только
	// activate-failed целевого слота.
	err := o.runGroup(ctx, d, rollback, rollbackGroup)
	o.metrics.ObserveRollback(err)
	if err != nil {
		return domain.OutcomeAborted, fmt.Errorf("%w: %s: %w", ErrRollbackFailed, rollback, err)
	}

	failed.RolledBack = true
	failed.RollbackSlot = rollback
	return domain.OutcomeRolledBack, failed
}

// runGroup выполняет фазы слота по порядку, до первой ошибки.
func (o *Orchestrator) runGroup(ctx context.Context, d *deployment, slot domain.Slot, phases []domain.Phase) error {
	for _, phase := range phases {
		req := steps.NewRequest(d.run.ID, d.plan, slot, phase)
		logger := telemetry.WithPhase(telemetry.WithSlot(d.logger, slot.String()), string(phase))

		logger.Info("phase started", "steps", len(req.Steps))

		start := time.Now()
		_, err := o.runner.RunPhase(ctx, req)
		duration := time.Since(start)

		o.metrics.ObservePhase(slot.String(), string(phase), duration)
		o.events.PhaseFinished(ctx, d.run, slot, phase, duration, err)

		if err != nil {
			logger.Error("phase failed", "duration", duration, "error", err)
			return err
		}
		logger.Info("phase finished", "duration", duration)
	}
	return nil
}

// saveRun пишет run в историю. Ошибка истории не меняет итог run.
func (o *Orchestrator) saveRun(ctx context.Context, run *domain.Run) {
	if o.history == nil {
		return
	}
	if err := o.history.Save(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Warn("failed to save run history", "run_id", run.ID, "error", err)
	}
}

// flush записывает снимок состояния.
//
// Запись идёт с контекстом без отмены: статус ошибки должен попасть в запись
// и после SIGINT, прервавшего шаг.
func (o *Orchestrator) flush(ctx context.Context, d *deployment) error {
	err := d.store.Flush(context.WithoutCancel(ctx))
	if err == nil {
		return nil
	}

	if errors.Is(err, statestore.ErrStateConflict) {
		o.metrics.ObserveConflict()
		d.logger.Error("state record changed by another writer, aborting",
			"state", d.store.Location(),
		)
	}
	return err
}
