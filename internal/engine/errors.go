package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Switchover/internal/domain"
)

// Ошибки плана.
var (
	// ErrPlanFormat — документ плана не соответствует ожидаемой структуре
	// (фаза не является списком, слот не является mapping и т.д.).
	ErrPlanFormat = errors.New("invalid plan format")

	// ErrUnknownStep — шаг не содержит run в виде строки или списка аргументов.
	ErrUnknownStep = errors.New("unknown step")

	// ErrEmptyPlan — документ плана пуст.
	ErrEmptyPlan = errors.New("plan is empty")

	// ErrMissingStateFile — в плане нет state_file.
	ErrMissingStateFile = errors.New("plan has no state_file")

	// ErrMissingSlot — в плане нет одного из слотов.
	ErrMissingSlot = errors.New("plan has no slot")

	// ErrMissingPhase — у слота нет одной из фаз.
	ErrMissingPhase = errors.New("slot has no phase")
)

// PlanError — ошибка плана с указанием места.
type PlanError struct {
	Slot    domain.Slot  // слот, где произошла ошибка (может быть пустым)
	Phase   domain.Phase // фаза (может быть пустой)
	Index   int          // номер шага в фазе, -1 если ошибка не относится к шагу
	Message string       // описание ошибки
	Err     error        // базовая ошибка
}

// Error реализует интерфейс error.
func (e *PlanError) Error() string {
	switch {
	case e.Index >= 0:
		return fmt.Sprintf("%s.%s[%d]: %s", e.Slot, e.Phase, e.Index, e.Message)
	case e.Phase != "":
		return fmt.Sprintf("%s.%s: %s", e.Slot, e.Phase, e.Message)
	case e.Slot != "":
		return fmt.Sprintf("%s: %s", e.Slot, e.Message)
	default:
		return e.Message
	}
}

// Unwrap возвращает базовую ошибку.
func (e *PlanError) Unwrap() error {
	return e.Err
}

// NewPlanError создаёт новую ошибку плана.
func NewPlanError(slot domain.Slot, phase domain.Phase, index int, message string, err error) *PlanError {
	return &PlanError{
		Slot:    slot,
		Phase:   phase,
		Index:   index,
		Message: message,
		Err:     err,
	}
}

// IsPlanError возвращает true для ошибок, которые отклоняют план до выполнения.
func IsPlanError(err error) bool {
	return errors.Is(err, ErrPlanFormat) ||
		errors.Is(err, ErrUnknownStep) ||
		errors.Is(err, ErrEmptyPlan) ||
		errors.Is(err, ErrMissingStateFile) ||
		errors.Is(err, ErrMissingSlot) ||
		errors.Is(err, ErrMissingPhase)
}
