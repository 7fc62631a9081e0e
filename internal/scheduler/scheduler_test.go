package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// --- cron Tests ---

func TestCalculateNextDue_Cron(t *testing.T) {
	sched := &domain.Schedule{CronExpr: "0 3 * * *", Timezone: "UTC"}
	from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, next)
	}
}

func TestCalculateNextDue_CronTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Skip("tzdata not available")
	}

	sched := &domain.Schedule{CronExpr: "0 3 * * *", Timezone: "Europe/Moscow"}
	from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := time.Date(2026, 3, 11, 3, 0, 0, 0, loc).UTC()
	if !next.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, next)
	}
	if next.Location() != time.UTC {
		t.Error("next due should be in UTC")
	}
}

func TestCalculateNextDue_Descriptor(t *testing.T) {
	sched := &domain.Schedule{CronExpr: "@every 90s"}
	from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Sub(from) != 90*time.Second {
		t.Errorf("expected +90s, got %v", next.Sub(from))
	}
}

func TestCalculateNextDue_Interval(t *testing.T) {
	sched := &domain.Schedule{IntervalSec: 600}
	from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(from.Add(10 * time.Minute)) {
		t.Errorf("expected +10m, got %v", next)
	}
}

func TestCalculateNextDue_Disabled(t *testing.T) {
	_, err := CalculateNextDue(&domain.Schedule{}, time.Now())
	if !errors.Is(err, ErrScheduleDisabled) {
		t.Errorf("expected ErrScheduleDisabled, got %v", err)
	}
}

func TestValidateCronExpr(t *testing.T) {
	tests := []struct {
		expr  string
		valid bool
	}{
		{"0 3 * * *", true},
		{"*/15 * * * 1-5", true},
		{"@daily", true},
		{"0 3 * *", false},
		{"61 * * * *", false},
		{"every day", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpr(tt.expr)
			if tt.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("expected ErrInvalidSchedule, got %v", err)
			}
		})
	}
}

// --- Scheduler Tests ---

type fakeTrigger struct {
	calls []string
	err   error
}

func (f *fakeTrigger) Trigger(_ context.Context, planPath, reason string) (*domain.Run, error) {
	f.calls = append(f.calls, planPath)
	run := domain.NewRun(planPath)
	run.Target = domain.SlotBlue
	run.Finish(domain.OutcomeActive, nil)
	return run, f.err
}

func newTestScheduler(t *testing.T, trigger Trigger, now *time.Time) *Scheduler {
	t.Helper()

	s, err := New(Config{
		Schedule: domain.Schedule{IntervalSec: 60},
		Trigger:  trigger,
		PlanPath: "plan.yaml",
		Logger:   telemetry.Discard(),
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.now = func() time.Time { return *now }
	return s
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrScheduleDisabled) {
		t.Errorf("expected ErrScheduleDisabled, got %v", err)
	}
	if _, err := New(Config{Schedule: domain.Schedule{CronExpr: "bogus"}}); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestNew_ComputesFirstDue(t *testing.T) {
	before := time.Now()
	s, err := New(Config{Schedule: domain.Schedule{IntervalSec: 60}, Logger: telemetry.Discard()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched := s.Schedule()
	if sched.NextDueAt == nil || sched.NextDueAt.Before(before.Add(59*time.Second)) {
		t.Errorf("first due should be about a minute from now, got %v", sched.NextDueAt)
	}
}

func TestTick(t *testing.T) {
	trigger := &fakeTrigger{}
	now := time.Now()
	s := newTestScheduler(t, trigger, &now)

	// ещё не пора
	ran, err := s.Tick(context.Background())
	if err != nil || ran {
		t.Fatalf("expected no deploy, got ran=%v err=%v", ran, err)
	}

	now = now.Add(2 * time.Minute)
	ran, err = s.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran || len(trigger.calls) != 1 || trigger.calls[0] != "plan.yaml" {
		t.Errorf("expected one deploy of plan.yaml, got %v", trigger.calls)
	}

	sched := s.Schedule()
	if sched.LastRunAt == nil {
		t.Error("LastRunAt should be recorded")
	}
	if !sched.NextDueAt.Equal(now.Add(time.Minute).UTC()) {
		t.Errorf("next due should be counted from the end of the run, got %v", sched.NextDueAt)
	}

	// сразу после запуска — снова не пора
	ran, _ = s.Tick(context.Background())
	if ran {
		t.Error("deploy must not repeat before the next due time")
	}
}

func TestTick_FailedDeployStillAdvances(t *testing.T) {
	trigger := &fakeTrigger{err: errors.New("deploy green: activate-failed")}
	now := time.Now()
	s := newTestScheduler(t, trigger, &now)

	now = now.Add(2 * time.Minute)
	ran, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("failed deploy is not a tick error, got %v", err)
	}
	if !ran {
		t.Error("deploy should have been triggered")
	}
	if !s.Schedule().NextDueAt.After(now) {
		t.Error("next due should move forward after a failed deploy")
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	s := newTestScheduler(t, &fakeTrigger{}, new(time.Time))
	s.tickInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
