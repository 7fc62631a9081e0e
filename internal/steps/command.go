package steps

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/shaiso/Switchover/internal/domain"
)

// DefaultShell — интерпретатор для шагов shell.
const DefaultShell = "/bin/sh"

// ShellExecutor выполняет строку команды через интерпретатор: sh -c "<command>".
type ShellExecutor struct {
	// Shell — путь к интерпретатору. Пусто — DefaultShell.
	Shell string
}

// NewShellExecutor создаёт ShellExecutor.
func NewShellExecutor(shell string) *ShellExecutor {
	if shell == "" {
		shell = DefaultShell
	}
	return &ShellExecutor{Shell: shell}
}

// Kind возвращает вариант шага.
func (e *ShellExecutor) Kind() domain.StepKind {
	return domain.StepKindShell
}

// Command строит процесс интерпретатора.
func (e *ShellExecutor) Command(ctx context.Context, step domain.Step) (*exec.Cmd, error) {
	if step.Command == "" {
		return nil, fmt.Errorf("shell step has empty command")
	}
	return exec.CommandContext(ctx, e.Shell, "-c", step.Command), nil
}

// ArgvExecutor запускает список аргументов напрямую, без интерпретатора.
type ArgvExecutor struct{}

// NewArgvExecutor создаёт ArgvExecutor.
func NewArgvExecutor() *ArgvExecutor {
	return &ArgvExecutor{}
}

// Kind возвращает вариант шага.
func (e *ArgvExecutor) Kind() domain.StepKind {
	return domain.StepKindArgv
}

// Command строит процесс из аргументов.
func (e *ArgvExecutor) Command(ctx context.Context, step domain.Step) (*exec.Cmd, error) {
	if len(step.Argv) == 0 {
		return nil, fmt.Errorf("argv step has no arguments")
	}
	return exec.CommandContext(ctx, step.Argv[0], step.Argv[1:]...), nil
}
