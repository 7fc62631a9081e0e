package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outcome — итог одного run развёртывания.
type Outcome string

const (
	// OutcomeActive — целевой слот активирован.
	OutcomeActive Outcome = "active"

	// OutcomePrepareFailed — prepare/check упали, активный слот не тронут.
	OutcomePrepareFailed Outcome = "prepare-failed"

	// OutcomeActivateFailed — activate/verify упали, отката не было.
	OutcomeActivateFailed Outcome = "activate-failed"

	// OutcomeRolledBack — activate/verify упали, другой слот активирован заново.
	OutcomeRolledBack Outcome = "rolled-back"

	// OutcomeAborted — run прерван ошибкой вне групп фаз (конфликт состояния,
	// ошибка плана, ошибка отката или фазы done).
	OutcomeAborted Outcome = "aborted"
)

// IsSuccess возвращает true, если целевой слот стал active.
func (o Outcome) IsSuccess() bool {
	return o == OutcomeActive
}

// Run — один запуск развёртывания.
//
// Run создаётся когда:
// - Оператор запускает развёртывание через CLI
// - Агент получает запрос из очереди
// - Агент срабатывает по расписанию
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// PlanSource — путь к плану.
	PlanSource string `json:"plan_source"`

	// Target — слот, который разворачивается.
	Target Slot `json:"target"`

	// Other — второй слот (кандидат на откат или понижение до backup).
	Other Slot `json:"other"`

	// Outcome — итог run. Пусто, пока run выполняется.
	Outcome Outcome `json:"outcome,omitempty"`

	// Error — текст ошибки, если run завершился неуспешно.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, пока run выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewRun создаёт run для плана.
func NewRun(planSource string) *Run {
	return &Run{
		ID:         uuid.New(),
		PlanSource: planSource,
		StartedAt:  time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если run завершён.
func (r *Run) IsFinished() bool {
	return r.FinishedAt != nil
}

// Finish фиксирует итог run.
func (r *Run) Finish(outcome Outcome, err error) {
	now := time.Now()
	r.Outcome = outcome
	r.FinishedAt = &now
	if err != nil {
		r.Error = err.Error()
	}
}
