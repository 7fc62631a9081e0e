package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Switchover/internal/domain"
)

// Events — получатель событий развёртывания.
//
// Вызовы синхронные и не возвращают ошибку: доставка best-effort и не
// влияет на run. Реализация для RabbitMQ — mq.EventPublisher.
type Events interface {
	DeployStarted(ctx context.Context, run *domain.Run)
	PhaseFinished(ctx context.Context, run *domain.Run, slot domain.Slot, phase domain.Phase, d time.Duration, err error)
	DeployFinished(ctx context.Context, run *domain.Run)
}

// logEvents — Events по умолчанию: события только в лог.
type logEvents struct {
	logger *slog.Logger
}

func (e logEvents) DeployStarted(_ context.Context, run *domain.Run) {
	e.logger.Debug("event: deploy started", "run_id", run.ID, "target", run.Target)
}

func (e logEvents) PhaseFinished(_ context.Context, run *domain.Run, slot domain.Slot, phase domain.Phase, d time.Duration, err error) {
	e.logger.Debug("event: phase finished",
		"run_id", run.ID,
		"slot", slot,
		"phase", phase,
		"duration", d,
		"failed", err != nil,
	)
}

func (e logEvents) DeployFinished(_ context.Context, run *domain.Run) {
	e.logger.Debug("event: deploy finished", "run_id", run.ID, "outcome", run.Outcome)
}
