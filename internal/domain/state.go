package domain

// DeploymentState — содержимое записи состояния: упорядоченный набор ключ → значение.
//
// Порядок ключей — порядок первого присваивания: ключи, прочитанные из записи,
// сохраняют позицию, новые добавляются в конец. От этого порядка зависит
// побайтовая стабильность сериализации.
type DeploymentState struct {
	keys   []string
	values map[string]string
}

// NewDeploymentState создаёт пустое состояние.
func NewDeploymentState() *DeploymentState {
	return &DeploymentState{values: make(map[string]string)}
}

// Get возвращает значение ключа и признак его наличия.
func (s *DeploymentState) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set устанавливает значение. Новый ключ добавляется в конец.
func (s *DeploymentState) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Status возвращает статус слота. Пустая строка — слот не развёртывался.
func (s *DeploymentState) Status(slot Slot) SlotStatus {
	v, _ := s.Get(slot.StatusKey())
	return SlotStatus(v)
}

// SetStatus устанавливает статус слота.
func (s *DeploymentState) SetStatus(slot Slot, status SlotStatus) {
	s.Set(slot.StatusKey(), string(status))
}

// Keys возвращает ключи в порядке записи.
func (s *DeploymentState) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Len возвращает количество ключей.
func (s *DeploymentState) Len() int {
	return len(s.keys)
}

// Clone возвращает независимую копию.
func (s *DeploymentState) Clone() *DeploymentState {
	c := NewDeploymentState()
	for _, k := range s.keys {
		c.Set(k, s.values[k])
	}
	return c
}

// ActiveSlots возвращает слоты со статусом active.
// После успешного run таких слотов не больше одного.
func (s *DeploymentState) ActiveSlots() []Slot {
	var active []Slot
	for _, slot := range Slots() {
		if s.Status(slot) == SlotStatusActive {
			active = append(active, slot)
		}
	}
	return active
}
