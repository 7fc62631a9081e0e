package engine

import (
	"fmt"

	"github.com/shaiso/Switchover/internal/domain"
)

// Validate выполняет полную валидацию плана.
//
// Проверяет:
// - Наличие state_file
// - Наличие обоих слотов
// - Наличие всех пяти фаз у каждого слота
// - Отсутствие шагов StepKindInvalid
//
// План проверяется целиком, включая слот, который сейчас не разворачивается:
// его фазы нужны для отката.
func Validate(plan *domain.Plan) error {
	if plan == nil {
		return ErrEmptyPlan
	}

	if plan.StateFile == "" {
		return ErrMissingStateFile
	}

	for _, slot := range domain.Slots() {
		slotPlan, ok := plan.Slots[slot]
		if !ok {
			return NewPlanError(slot, "", -1, "slot is not defined", ErrMissingSlot)
		}

		for _, phase := range domain.Phases() {
			steps, ok := slotPlan[phase]
			if !ok {
				return NewPlanError(slot, phase, -1, "phase is not defined", ErrMissingPhase)
			}
			if err := ValidateSteps(slot, phase, steps); err != nil {
				return err
			}
		}
	}

	return nil
}

// ValidateSteps проверяет, что каждый шаг фазы имеет известную форму.
func ValidateSteps(slot domain.Slot, phase domain.Phase, steps []domain.Step) error {
	for i, step := range steps {
		if err := ValidateStep(step); err != nil {
			return NewPlanError(slot, phase, i, err.Error(), ErrUnknownStep)
		}
	}
	return nil
}

// ValidateStep проверяет один шаг.
func ValidateStep(step domain.Step) error {
	switch step.Kind {
	case domain.StepKindShell:
		if step.Command == "" {
			return fmt.Errorf("empty command")
		}
	case domain.StepKindArgv:
		if len(step.Argv) == 0 {
			return fmt.Errorf("empty argument list")
		}
	default:
		return fmt.Errorf("unknown step: %s", step.Raw)
	}
	return nil
}
