package domain

import "fmt"

// Slot — один из двух взаимозаменяемых слотов развёртывания.
type Slot string

const (
	// SlotBlue — слот "blue".
	SlotBlue Slot = "blue"

	// SlotGreen — слот "green".
	SlotGreen Slot = "green"
)

// Slots возвращает оба слота в фиксированном порядке.
func Slots() []Slot {
	return []Slot{SlotBlue, SlotGreen}
}

// Other возвращает второй слот пары.
func (s Slot) Other() Slot {
	if s == SlotBlue {
		return SlotGreen
	}
	return SlotBlue
}

// IsValid проверяет, что слот известен.
func (s Slot) IsValid() bool {
	return s == SlotBlue || s == SlotGreen
}

// String возвращает строковое представление Slot.
func (s Slot) String() string {
	return string(s)
}

// StatusKey возвращает ключ записи состояния для слота: "<slot>_status".
func (s Slot) StatusKey() string {
	return string(s) + "_status"
}

// ParseSlot парсит строку в Slot.
func ParseSlot(s string) (Slot, error) {
	slot := Slot(s)
	if !slot.IsValid() {
		return "", fmt.Errorf("unknown slot %q", s)
	}
	return slot, nil
}

// Phase — именованная стадия развёртывания.
//
// Порядок выполнения:
//
//	prepare → check → activate → verify → done
type Phase string

const (
	// PhasePrepare — подготовка слота (сборка, выкладка артефактов).
	PhasePrepare Phase = "prepare"

	// PhaseCheck — проверка подготовленного слота до переключения трафика.
	PhaseCheck Phase = "check"

	// PhaseActivate — переключение трафика на слот.
	PhaseActivate Phase = "activate"

	// PhaseVerify — проверка слота под трафиком.
	PhaseVerify Phase = "verify"

	// PhaseDone — финальные действия после успешной активации.
	PhaseDone Phase = "done"
)

// Phases возвращает все фазы в порядке выполнения.
func Phases() []Phase {
	return []Phase{PhasePrepare, PhaseCheck, PhaseActivate, PhaseVerify, PhaseDone}
}

// IsValid проверяет, что фаза известна.
func (p Phase) IsValid() bool {
	switch p {
	case PhasePrepare, PhaseCheck, PhaseActivate, PhaseVerify, PhaseDone:
		return true
	default:
		return false
	}
}

// SlotStatus — статус слота в записи состояния.
//
// Жизненный цикл:
//
//	(нет ключа) → preparing → prepare-failed
//	                        ↘ active → backup
//	                        ↘ activate-failed
type SlotStatus string

const (
	// SlotStatusPreparing — слот подготавливается (prepare/check ещё выполняются).
	SlotStatusPreparing SlotStatus = "preparing"

	// SlotStatusPrepareFailed — prepare или check завершились ошибкой.
	SlotStatusPrepareFailed SlotStatus = "prepare-failed"

	// SlotStatusActivateFailed — activate или verify завершились ошибкой.
	SlotStatusActivateFailed SlotStatus = "activate-failed"

	// SlotStatusActive — слот обслуживает трафик.
	SlotStatusActive SlotStatus = "active"

	// SlotStatusBackup — бывший active слот, кандидат для отката.
	SlotStatusBackup SlotStatus = "backup"
)

// String возвращает строковое представление SlotStatus.
func (s SlotStatus) String() string {
	return string(s)
}

// IsKnown проверяет, что статус входит в перечисление.
func (s SlotStatus) IsKnown() bool {
	switch s {
	case SlotStatusPreparing, SlotStatusPrepareFailed, SlotStatusActivateFailed,
		SlotStatusActive, SlotStatusBackup:
		return true
	default:
		return false
	}
}

// IsRollbackTarget возвращает true, если на слот можно откатиться.
func (s SlotStatus) IsRollbackTarget() bool {
	return s == SlotStatusActive || s == SlotStatusBackup
}

// IsFailure возвращает true для статусов, фиксирующих ошибку.
func (s SlotStatus) IsFailure() bool {
	return s == SlotStatusPrepareFailed || s == SlotStatusActivateFailed
}
