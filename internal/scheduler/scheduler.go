package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Switchover/internal/domain"
)

// Ошибки планировщика.
var (
	// ErrScheduleDisabled — не задан ни cron, ни интервал.
	ErrScheduleDisabled = errors.New("schedule has neither cron expression nor interval")

	// ErrInvalidSchedule — cron-выражение не разбирается.
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// defaultTickInterval — как часто проверяется, пора ли развёртывать.
const defaultTickInterval = time.Second

// Trigger запускает развёртывание (orchestrator.Orchestrator).
type Trigger interface {
	Trigger(ctx context.Context, planPath, reason string) (*domain.Run, error)
}

// Scheduler запускает развёртывания по расписанию.
//
// Run выполняется синхронно внутри Tick, поэтому запуски по расписанию
// никогда не пересекаются; пропущенные за время долгого run моменты не
// догоняются, следующий считается от момента окончания.
type Scheduler struct {
	schedule     *domain.Schedule
	trigger      Trigger
	planPath     string
	tickInterval time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	// Schedule — cron или интервал.
	Schedule domain.Schedule

	// Trigger — кто выполняет развёртывание.
	Trigger Trigger

	// PlanPath — план (пусто — план Trigger по умолчанию).
	PlanPath string

	// TickInterval — период проверки (default: 1s).
	TickInterval time.Duration

	Logger *slog.Logger
}

// New создаёт новый Scheduler и вычисляет первое время запуска.
func New(cfg Config) (*Scheduler, error) {
	sched := cfg.Schedule
	if !sched.IsEnabled() {
		return nil, ErrScheduleDisabled
	}
	if sched.IsCron() {
		if err := ValidateCronExpr(sched.CronExpr); err != nil {
			return nil, err
		}
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		schedule:     &sched,
		trigger:      cfg.Trigger,
		planPath:     cfg.PlanPath,
		tickInterval: tick,
		logger:       logger,
		now:          time.Now,
	}

	if sched.NextDueAt == nil {
		next, err := CalculateNextDue(s.schedule, s.now())
		if err != nil {
			return nil, err
		}
		s.schedule.NextDueAt = &next
	}

	return s, nil
}

// Schedule возвращает копию текущего расписания.
func (s *Scheduler) Schedule() domain.Schedule {
	return *s.schedule
}

// Start крутит Tick до отмены ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		"cron", s.schedule.CronExpr,
		"interval_sec", s.schedule.IntervalSec,
		"next_due_at", s.schedule.NextDueAt,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick выполняет один тик планировщика.
//
// Если время пришло — запускает развёртывание и вычисляет следующее время.
// Возвращает true, если развёртывание запускалось. Неуспешный run не
// считается ошибкой тика: его итог уже записан оркестратором.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	if !s.schedule.IsDue(s.now()) {
		return false, nil
	}

	due := *s.schedule.NextDueAt
	s.logger.Info("scheduled deploy is due", "due_at", due)

	run, err := s.trigger.Trigger(ctx, s.planPath, fmt.Sprintf("schedule %s", due.Format(time.RFC3339)))
	if err != nil {
		s.logger.Warn("scheduled deploy failed", "error", err)
	} else if run != nil {
		s.logger.Info("scheduled deploy finished", "run_id", run.ID, "target", run.Target, "outcome", run.Outcome)
	}

	next, err := CalculateNextDue(s.schedule, s.now())
	if err != nil {
		return true, fmt.Errorf("calculate next due: %w", err)
	}
	s.schedule.RecordRun(next)

	s.logger.Debug("next scheduled deploy", "next_due_at", next)
	return true, nil
}
