package steps

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Switchover/internal/domain"
)

// Ошибки шагов.
var (
	// ErrCommandFailed — команда завершилась с ненулевым кодом.
	ErrCommandFailed = errors.New("command failed")

	// ErrCommandStart — команду не удалось запустить.
	ErrCommandStart = errors.New("command could not be started")
)

// Переменные окружения, которые получает каждая команда шага.
const (
	EnvSlot  = "SWITCHOVER_SLOT"
	EnvPhase = "SWITCHOVER_PHASE"
	EnvRunID = "SWITCHOVER_RUN_ID"
)

// Executor — исполнитель одного варианта шага.
//
// Каждый вариант (shell, argv) реализует этот интерфейс. Executor только
// строит процесс; запуск, ожидание и разбор кода выхода делает Runner.
type Executor interface {
	// Kind возвращает вариант шага.
	Kind() domain.StepKind

	// Command строит процесс для шага.
	Command(ctx context.Context, step domain.Step) (*exec.Cmd, error)
}

// Request — фаза для выполнения.
type Request struct {
	// RunID — идентификатор run (передаётся командам через окружение).
	RunID uuid.UUID

	// Slot — слот, чья фаза выполняется.
	Slot domain.Slot

	// Phase — фаза.
	Phase domain.Phase

	// Steps — шаги фазы по порядку.
	Steps []domain.Step
}

// NewRequest создаёт Request для фазы плана.
func NewRequest(runID uuid.UUID, plan *domain.Plan, slot domain.Slot, phase domain.Phase) *Request {
	return &Request{
		RunID: runID,
		Slot:  slot,
		Phase: phase,
		Steps: plan.Steps(slot, phase),
	}
}

// Response — результат выполнения фазы.
type Response struct {
	// Executed — сколько шагов завершилось успешно.
	Executed int

	// Duration — длительность фазы.
	Duration time.Duration
}

// CommandError — команда шага завершилась с ненулевым кодом.
type CommandError struct {
	// Command — команда в читаемом виде.
	Command string

	// Argv — аргументы для шага argv; nil для shell.
	Argv []string

	// ExitCode — код выхода; -1, если процесс убит сигналом.
	ExitCode int

	// PID — идентификатор процесса.
	PID int

	// Duration — время выполнения команды.
	Duration time.Duration
}

// Error реализует интерфейс error.
func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed (exit code %d, pid %d)", e.Command, e.ExitCode, e.PID)
}

// Is позволяет проверять errors.Is(err, ErrCommandFailed).
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}
