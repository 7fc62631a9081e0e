package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/mq"
	"github.com/shaiso/Switchover/internal/statestore"
)

// handleDeployRequest обрабатывает запрос на развёртывание из очереди.
//
// Ошибка возвращается consumer только если запрос невозможно выполнить
// (плохой payload, нет плана, чужой план); тогда сообщение уходит в DLQ.
// Неуспешный run — нормальный итог: статус записан, сообщение подтверждается.
//
// Запрос может назвать только план агента: шаги плана выполняются shell на
// хосте агента, поэтому путь из очереди не должен выбирать произвольный файл.
func (o *Orchestrator) handleDeployRequest(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.DeployRequestPayload](&delivery.Message)
	if err != nil {
		o.logger.Error("failed to parse deploy request payload", "error", err)
		return err
	}

	o.logger.Info("received deploy request",
		"message_id", delivery.Message.ID,
		"plan", payload.PlanPath,
		"requested_by", payload.RequestedBy,
		"redelivered", delivery.Redelivered,
	)

	if err := o.checkRequestedPlan(payload.PlanPath); err != nil {
		o.logger.Error("rejecting deploy request", "message_id", delivery.Message.ID, "error", err)
		return err
	}

	_, err = o.Trigger(ctx, payload.PlanPath, "request "+delivery.Message.ID)
	if err != nil && !isRunOutcome(err) {
		return err
	}
	return nil
}

// checkRequestedPlan пропускает пустой путь (план агента) и путь плана агента.
func (o *Orchestrator) checkRequestedPlan(planPath string) error {
	if planPath == "" || (o.planPath != "" && filepath.Clean(planPath) == filepath.Clean(o.planPath)) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForeignPlan, planPath)
}

// Trigger выполняет развёртывание по запросу агента (очередь, расписание).
//
// Пустой planPath — план агента. reason попадает в лог.
func (o *Orchestrator) Trigger(ctx context.Context, planPath, reason string) (*domain.Run, error) {
	if o.IsStopped() {
		return nil, ErrOrchestratorStopped
	}

	if planPath == "" {
		planPath = o.planPath
	}
	if planPath == "" {
		return nil, ErrNoPlan
	}

	o.logger.Info("deploy triggered", "plan", planPath, "reason", reason)

	run, err := o.RunDeploy(ctx, planPath)
	if err != nil {
		o.logger.Warn("triggered deploy did not succeed", "plan", planPath, "error", err)
	}
	return run, err
}

// isRunOutcome проверяет, что ошибка — итог выполненного run, а не
// невозможность его выполнить.
func isRunOutcome(err error) bool {
	return errors.Is(err, ErrDeployFailed) ||
		errors.Is(err, ErrRollbackFailed) ||
		errors.Is(err, ErrDoneFailed) ||
		errors.Is(err, statestore.ErrStateConflict)
}
