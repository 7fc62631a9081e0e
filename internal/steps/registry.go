package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/engine"
)

// Registry — реестр исполнителей по варианту шага.
//
// Позволяет регистрировать и получать Executor по StepKind.
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.StepKind]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[domain.StepKind]Executor),
	}
}

// DefaultRegistry создаёт реестр со стандартными исполнителями: shell и argv.
func DefaultRegistry(shell string) *Registry {
	r := NewRegistry()
	r.Register(NewShellExecutor(shell))
	r.Register(NewArgvExecutor())
	return r
}

// Register регистрирует исполнителя.
// Если исполнитель для варианта уже существует, он будет перезаписан.
func (r *Registry) Register(executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[executor.Kind()] = executor
}

// Get возвращает исполнителя для варианта.
// Возвращает engine.ErrUnknownStep, если исполнитель не найден.
func (r *Registry) Get(kind domain.StepKind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, exists := r.executors[kind]
	if !exists {
		return nil, fmt.Errorf("%w: no executor for %q", engine.ErrUnknownStep, kind)
	}

	return executor, nil
}

// Has проверяет, зарегистрирован ли исполнитель.
func (r *Registry) Has(kind domain.StepKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.executors[kind]
	return exists
}

// Kinds возвращает список зарегистрированных вариантов.
func (r *Registry) Kinds() []domain.StepKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.StepKind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Unregister удаляет исполнителя из реестра.
func (r *Registry) Unregister(kind domain.StepKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.executors, kind)
}
