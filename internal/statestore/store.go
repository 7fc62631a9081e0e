package statestore

import (
	"context"
	"fmt"

	"github.com/shaiso/Switchover/internal/domain"
)

// Store — снимок состояния на время одного run.
//
// Store создаётся при открытии записи, меняется в памяти по мере прохождения
// фаз и пишется в Record при каждом Flush. После завершения run отбрасывается.
// Store не потокобезопасен: им владеет ровно один run.
type Store struct {
	record Record

	// baseline — содержимое записи, которое run видел последним
	// (при Open или после успешного Flush).
	baseline Snapshot

	// state — текущее состояние в памяти.
	state *domain.DeploymentState
}

// Open читает запись и фиксирует её как базовую для обнаружения конфликтов.
// Отсутствующая запись даёт пустое состояние.
func Open(ctx context.Context, record Record) (*Store, error) {
	snapshot, err := record.Read(ctx)
	if err != nil {
		return nil, err
	}

	state, err := Decode(snapshot.Content)
	if err != nil {
		return nil, fmt.Errorf("state record %s: %w", record.Location(), err)
	}

	return &Store{
		record:   record,
		baseline: snapshot,
		state:    state,
	}, nil
}

// Location возвращает путь или ключ записи.
func (s *Store) Location() string {
	return s.record.Location()
}

// Get возвращает значение ключа в памяти.
func (s *Store) Get(key string) (string, bool) {
	return s.state.Get(key)
}

// Set меняет значение в памяти. Ввода-вывода нет.
func (s *Store) Set(key, value string) {
	s.state.Set(key, value)
}

// Status возвращает статус слота. Пустой статус — слот не развёртывался.
func (s *Store) Status(slot domain.Slot) domain.SlotStatus {
	return s.state.Status(slot)
}

// SetStatus меняет статус слота в памяти.
func (s *Store) SetStatus(slot domain.Slot, status domain.SlotStatus) {
	s.state.SetStatus(slot, status)
}

// State возвращает копию состояния в памяти.
func (s *Store) State() *domain.DeploymentState {
	return s.state.Clone()
}

// Baseline возвращает содержимое записи, которое Store видел последним.
func (s *Store) Baseline() Snapshot {
	return s.baseline
}

// Flush пишет состояние в запись.
//
// Если запись изменилась с момента Open или предыдущего Flush, возвращает
// ErrStateConflict и ничего не пишет. Иначе атомарно заменяет запись и
// обновляет базовое содержимое.
func (s *Store) Flush(ctx context.Context) error {
	content, err := Encode(s.state)
	if err != nil {
		return err
	}

	if err := s.record.CompareAndSwap(ctx, s.baseline, content); err != nil {
		return err
	}

	s.baseline = Snapshot{Content: content, Exists: true}
	return nil
}
