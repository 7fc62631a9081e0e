package mq

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Switchover/internal/domain"
)

// publishTimeout ограничивает публикацию одного события.
const publishTimeout = 5 * time.Second

// EventPublisher публикует события развёртывания в ExchangeEvents.
//
// Публикация best-effort: ошибка только логируется и никогда не влияет на run.
// Nil Publisher допустим — тогда события только логируются на уровне Debug.
type EventPublisher struct {
	publisher *Publisher
	logger    *slog.Logger
}

// NewEventPublisher создаёт EventPublisher.
func NewEventPublisher(publisher *Publisher, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{publisher: publisher, logger: logger}
}

// DeployStarted публикует deploy.started.
func (e *EventPublisher) DeployStarted(ctx context.Context, run *domain.Run) {
	e.publish(ctx, MessageTypeDeployStarted, NewDeployStartedPayload(run))
}

// PhaseFinished публикует deploy.phase.
func (e *EventPublisher) PhaseFinished(ctx context.Context, run *domain.Run, slot domain.Slot, phase domain.Phase, d time.Duration, err error) {
	e.publish(ctx, MessageTypeDeployPhase, NewDeployPhasePayload(run, slot, phase, d, err))
}

// DeployFinished публикует deploy.finished.
func (e *EventPublisher) DeployFinished(ctx context.Context, run *domain.Run) {
	e.publish(ctx, MessageTypeDeployFinished, NewDeployFinishedPayload(run))
}

func (e *EventPublisher) publish(ctx context.Context, msgType MessageType, payload any) {
	if e.publisher == nil {
		e.logger.Debug("event not published: no broker", "type", msgType)
		return
	}

	// событие о прерванном run всё равно должно уйти
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := e.publisher.PublishEvent(ctx, msgType, payload); err != nil {
		e.logger.Warn("failed to publish event", "type", msgType, "error", err)
	}
}

// NewDeployStartedPayload собирает payload deploy.started.
func NewDeployStartedPayload(run *domain.Run) DeployStartedPayload {
	return DeployStartedPayload{
		RunID:      run.ID,
		PlanSource: run.PlanSource,
		Target:     run.Target.String(),
		Other:      run.Other.String(),
	}
}

// NewDeployPhasePayload собирает payload deploy.phase.
func NewDeployPhasePayload(run *domain.Run, slot domain.Slot, phase domain.Phase, d time.Duration, err error) DeployPhasePayload {
	p := DeployPhasePayload{
		RunID:      run.ID,
		Slot:       slot.String(),
		Phase:      string(phase),
		DurationMs: d.Milliseconds(),
	}
	if err != nil {
		p.Failed = true
		p.Error = err.Error()
	}
	return p
}

// NewDeployFinishedPayload собирает payload deploy.finished.
func NewDeployFinishedPayload(run *domain.Run) DeployFinishedPayload {
	return DeployFinishedPayload{
		RunID:      run.ID,
		Target:     run.Target.String(),
		Outcome:    string(run.Outcome),
		Error:      run.Error,
		DurationMs: run.Duration().Milliseconds(),
	}
}
