package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/engine"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// Runner выполняет шаги фаз.
//
// Шаги выполняются строго по порядку, по одному процессу за раз. Первый
// упавший шаг останавливает фазу; следующие шаги этой фазы не запускаются.
type Runner struct {
	registry *Registry
	stdout   io.Writer
	stderr   io.Writer
	dir      string
	env      []string
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// Config — конфигурация Runner.
type Config struct {
	// Registry — исполнители (опционально; если nil — DefaultRegistry(Shell)).
	Registry *Registry

	// Shell — интерпретатор для шагов shell (default: /bin/sh).
	Shell string

	// Stdout, Stderr — куда направлять вывод команд (default: os.Stdout, os.Stderr).
	Stdout io.Writer
	Stderr io.Writer

	// Dir — рабочий каталог команд (default: текущий каталог процесса).
	Dir string

	// Env — дополнительные переменные окружения в формате KEY=VALUE.
	Env []string

	// Metrics — метрики (опционально).
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// NewRunner создаёт новый Runner.
func NewRunner(cfg Config) *Runner {
	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry(cfg.Shell)
	}

	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry: registry,
		stdout:   stdout,
		stderr:   stderr,
		dir:      cfg.Dir,
		env:      cfg.Env,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// RunPhase выполняет шаги фазы по порядку.
//
// Перед запуском первой команды проверяет форму всех шагов фазы: неизвестный
// шаг отклоняется с engine.ErrUnknownStep, и ни одна команда не запускается.
func (r *Runner) RunPhase(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	if err := engine.ValidateSteps(req.Slot, req.Phase, req.Steps); err != nil {
		return nil, err
	}

	logger := telemetry.WithPhase(telemetry.WithSlot(r.logger, string(req.Slot)), string(req.Phase))
	logger.Debug("phase started", "steps", len(req.Steps))

	resp := &Response{}
	for i, step := range req.Steps {
		if err := r.runStep(ctx, logger, req, i, step); err != nil {
			resp.Duration = time.Since(start)
			logger.Debug("phase failed",
				"step", i,
				"duration", resp.Duration,
				"error", err,
			)
			return resp, err
		}
		resp.Executed++
	}

	resp.Duration = time.Since(start)
	logger.Debug("phase finished", "duration", resp.Duration)
	return resp, nil
}

// RunStep выполняет один шаг вне фазы плана.
func (r *Runner) RunStep(ctx context.Context, req *Request, step domain.Step) error {
	if err := engine.ValidateStep(step); err != nil {
		return engine.NewPlanError(req.Slot, req.Phase, -1, err.Error(), engine.ErrUnknownStep)
	}
	return r.runStep(ctx, r.logger, req, -1, step)
}

// runStep запускает процесс шага и ждёт его завершения.
func (r *Runner) runStep(ctx context.Context, logger *slog.Logger, req *Request, index int, step domain.Step) error {
	executor, err := r.registry.Get(step.Kind)
	if err != nil {
		return engine.NewPlanError(req.Slot, req.Phase, index, err.Error(), engine.ErrUnknownStep)
	}

	cmd, err := executor.Command(ctx, step)
	if err != nil {
		return engine.NewPlanError(req.Slot, req.Phase, index, err.Error(), engine.ErrUnknownStep)
	}

	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.Dir = r.dir
	cmd.Env = r.environ(req)

	logger.Debug("run step", "kind", step.Kind, "command", step.String())

	start := time.Now()
	if err := cmd.Start(); err != nil {
		r.metrics.ObserveStep(string(step.Kind), err)
		return fmt.Errorf("%w: %q: %v", ErrCommandStart, step.String(), err)
	}
	pid := cmd.Process.Pid

	waitErr := cmd.Wait()
	duration := time.Since(start)

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			r.metrics.ObserveStep(string(step.Kind), waitErr)
			return fmt.Errorf("wait for %q: %w", step.String(), waitErr)
		}
		exitCode = exitErr.ExitCode()
	}

	logger.Debug("command finished",
		"duration", duration,
		"exit_code", exitCode,
		"pid", pid,
	)

	if waitErr != nil {
		cmdErr := &CommandError{
			Command:  step.String(),
			ExitCode: exitCode,
			PID:      pid,
			Duration: duration,
		}
		if step.Kind == domain.StepKindArgv {
			cmdErr.Argv = append([]string(nil), step.Argv...)
		}
		r.metrics.ObserveStep(string(step.Kind), cmdErr)
		return cmdErr
	}

	r.metrics.ObserveStep(string(step.Kind), nil)
	return nil
}

// environ собирает окружение команды.
func (r *Runner) environ(req *Request) []string {
	env := os.Environ()
	env = append(env, r.env...)
	env = append(env,
		EnvSlot+"="+string(req.Slot),
		EnvPhase+"="+string(req.Phase),
		EnvRunID+"="+req.RunID.String(),
	)
	return env
}
