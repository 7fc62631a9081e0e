package orchestrator

import "github.com/shaiso/Switchover/internal/domain"

// SelectSlots выбирает целевой слот run и второй слот пары.
//
// Целевой слот — green, если blue сейчас active; во всех остальных случаях
// (пустая запись, blue в backup или с ошибкой) — blue. Для серии успешных
// run это даёт строгое чередование blue, green, blue, ...
func SelectSlots(state *domain.DeploymentState) (target, other domain.Slot) {
	if state != nil && state.Status(domain.SlotBlue) == domain.SlotStatusActive {
		return domain.SlotGreen, domain.SlotBlue
	}
	return domain.SlotBlue, domain.SlotGreen
}
