package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/engine"
	"github.com/shaiso/Switchover/internal/mq"
	"github.com/shaiso/Switchover/internal/statestore"
	"github.com/shaiso/Switchover/internal/steps"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// --- helpers ---

// fixture — план во временном каталоге: каждый шаг дописывает
// "<slot>-<phase>" в журнал.
type fixture struct {
	dir       string
	planPath  string
	statePath string
	logPath   string
}

// newFixture пишет план. override дописывает команду к шагу "<slot>-<phase>";
// {state} в ней заменяется путём записи состояния.
func newFixture(t *testing.T, override map[string]string) *fixture {
	t.Helper()

	dir := t.TempDir()
	f := &fixture{
		dir:       dir,
		planPath:  filepath.Join(dir, "plan.yaml"),
		statePath: filepath.Join(dir, "state.yaml"),
		logPath:   filepath.Join(dir, "deploy.log"),
	}

	var b strings.Builder
	b.WriteString("state_file: state.yaml\n")
	for _, slot := range domain.Slots() {
		fmt.Fprintf(&b, "%s:\n", slot)
		for _, phase := range domain.Phases() {
			name := fmt.Sprintf("%s-%s", slot, phase)
			cmd := fmt.Sprintf("echo %s >> '%s'", name, f.logPath)
			if extra, ok := override[name]; ok {
				cmd += "; " + strings.ReplaceAll(extra, "{state}", f.statePath)
			}
			fmt.Fprintf(&b, "  %s:\n    - run: %q\n", phase, cmd)
		}
	}

	if err := os.WriteFile(f.planPath, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	return f
}

func (f *fixture) log(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.logPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return strings.Fields(string(data))
}

func (f *fixture) state(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.statePath)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	return string(data)
}

func (f *fixture) writeState(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(f.statePath, []byte(content), 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}
}

// recordingEvents запоминает события развёртывания.
type recordingEvents struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEvents) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, s)
}

func (e *recordingEvents) DeployStarted(_ context.Context, run *domain.Run) {
	e.add("started:" + run.Target.String())
}

func (e *recordingEvents) PhaseFinished(_ context.Context, _ *domain.Run, slot domain.Slot, phase domain.Phase, _ time.Duration, err error) {
	s := fmt.Sprintf("phase:%s-%s", slot, phase)
	if err != nil {
		s += ":failed"
	}
	e.add(s)
}

func (e *recordingEvents) DeployFinished(_ context.Context, run *domain.Run) {
	e.add("finished:" + string(run.Outcome))
}

func newTestOrchestrator(events Events) *Orchestrator {
	return New(Config{
		Runner: steps.NewRunner(steps.Config{
			Stdout: io.Discard,
			Stderr: io.Discard,
			Logger: telemetry.Discard(),
		}),
		Events: events,
		Logger: telemetry.Discard(),
	})
}

func slotLog(slot domain.Slot, phases ...domain.Phase) []string {
	out := make([]string, len(phases))
	for i, p := range phases {
		out[i] = fmt.Sprintf("%s-%s", slot, p)
	}
	return out
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- SelectSlots Tests ---

func TestSelectSlots(t *testing.T) {
	tests := []struct {
		name   string
		blue   domain.SlotStatus
		green  domain.SlotStatus
		target domain.Slot
	}{
		{"empty record", "", "", domain.SlotBlue},
		{"blue active", domain.SlotStatusActive, "", domain.SlotGreen},
		{"blue active green backup", domain.SlotStatusActive, domain.SlotStatusBackup, domain.SlotGreen},
		{"green active blue backup", domain.SlotStatusBackup, domain.SlotStatusActive, domain.SlotBlue},
		{"blue failed", domain.SlotStatusActivateFailed, domain.SlotStatusActive, domain.SlotBlue},
		{"blue preparing", domain.SlotStatusPreparing, "", domain.SlotBlue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := domain.NewDeploymentState()
			if tt.blue != "" {
				state.SetStatus(domain.SlotBlue, tt.blue)
			}
			if tt.green != "" {
				state.SetStatus(domain.SlotGreen, tt.green)
			}

			target, other := SelectSlots(state)
			if target != tt.target {
				t.Errorf("expected target %s, got %s", tt.target, target)
			}
			if other != tt.target.Other() {
				t.Errorf("expected other %s, got %s", tt.target.Other(), other)
			}
		})
	}
}

// --- Deploy Tests ---

func TestDeploy_Alternation(t *testing.T) {
	f := newFixture(t, nil)
	orch := newTestOrchestrator(nil)

	expected := []struct {
		target domain.Slot
		state  string
	}{
		{domain.SlotBlue, "blue_status: active\n"},
		{domain.SlotGreen, "blue_status: backup\ngreen_status: active\n"},
		{domain.SlotBlue, "blue_status: active\ngreen_status: backup\n"},
		{domain.SlotGreen, "blue_status: backup\ngreen_status: active\n"},
	}

	for i, exp := range expected {
		run, err := orch.RunDeploy(context.Background(), f.planPath)
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", i+1, err)
		}
		if run.Target != exp.target {
			t.Errorf("run %d: expected target %s, got %s", i+1, exp.target, run.Target)
		}
		if run.Outcome != domain.OutcomeActive {
			t.Errorf("run %d: expected outcome active, got %s", i+1, run.Outcome)
		}
		if got := f.state(t); got != exp.state {
			t.Errorf("run %d: expected state %q, got %q", i+1, exp.state, got)
		}
	}

	if orch.LastRun() == nil || orch.LastRun().Target != domain.SlotGreen {
		t.Error("LastRun should be the last deploy")
	}
}

func TestDeploy_RollbackScenario(t *testing.T) {
	f := newFixture(t, map[string]string{"green-verify": "exit 1"})
	orch := newTestOrchestrator(nil)

	// run 1: blue
	if _, err := orch.RunDeploy(context.Background(), f.planPath); err != nil {
		t.Fatalf("run 1: unexpected error: %v", err)
	}
	if got := f.state(t); got != "blue_status: active\n" {
		t.Fatalf("run 1: unexpected state %q", got)
	}

	// run 2: green падает на verify, откат на blue
	run, err := orch.RunDeploy(context.Background(), f.planPath)
	if !errors.Is(err, ErrDeployFailed) {
		t.Fatalf("run 2: expected ErrDeployFailed, got %v", err)
	}
	if !errors.Is(err, steps.ErrCommandFailed) {
		t.Errorf("run 2: step error should be preserved, got %v", err)
	}

	var deployErr *DeployError
	if !errors.As(err, &deployErr) {
		t.Fatalf("expected DeployError, got %T", err)
	}
	if deployErr.Slot != domain.SlotGreen || deployErr.Status != domain.SlotStatusActivateFailed {
		t.Errorf("unexpected DeployError %+v", deployErr)
	}
	if !deployErr.RolledBack || deployErr.RollbackSlot != domain.SlotBlue {
		t.Errorf("expected rollback to blue, got %+v", deployErr)
	}
	if run.Outcome != domain.OutcomeRolledBack {
		t.Errorf("expected outcome rolled-back, got %s", run.Outcome)
	}

	if got := f.state(t); got != "blue_status: active\ngreen_status: activate-failed\n" {
		t.Errorf("unexpected final state %q", got)
	}

	var want []string
	want = append(want, slotLog(domain.SlotBlue, domain.Phases()...)...)
	want = append(want, slotLog(domain.SlotGreen, domain.PhasePrepare, domain.PhaseCheck, domain.PhaseActivate, domain.PhaseVerify)...)
	want = append(want, slotLog(domain.SlotBlue, domain.PhaseActivate, domain.PhaseVerify, domain.PhaseDone)...)

	if got := f.log(t); !equalLines(got, want) {
		t.Errorf("unexpected log:\n got: %v\nwant: %v", got, want)
	}
}

func TestDeploy_NoRollbackTarget(t *testing.T) {
	f := newFixture(t, map[string]string{"blue-activate": "exit 2"})
	orch := newTestOrchestrator(nil)

	run, err := orch.RunDeploy(context.Background(), f.planPath)

	var deployErr *DeployError
	if !errors.As(err, &deployErr) {
		t.Fatalf("expected DeployError, got %v", err)
	}
	if deployErr.RolledBack {
		t.Error("rollback must not happen without a known-good slot")
	}
	if run.Outcome != domain.OutcomeActivateFailed {
		t.Errorf("expected outcome activate-failed, got %s", run.Outcome)
	}

	if got := f.state(t); got != "blue_status: activate-failed\n" {
		t.Errorf("unexpected state %q", got)
	}

	want := slotLog(domain.SlotBlue, domain.PhasePrepare, domain.PhaseCheck, domain.PhaseActivate)
	if got := f.log(t); !equalLines(got, want) {
		t.Errorf("no green steps may run: got %v", got)
	}
}

func TestDeploy_FailedOtherSlotIsNotRollbackTarget(t *testing.T) {
	f := newFixture(t, map[string]string{"blue-verify": "exit 1"})
	f.writeState(t, "green_status: prepare-failed\n")
	orch := newTestOrchestrator(nil)

	_, err := orch.RunDeploy(context.Background(), f.planPath)

	var deployErr *DeployError
	if !errors.As(err, &deployErr) || deployErr.RolledBack {
		t.Fatalf("expected DeployError without rollback, got %v", err)
	}
	if got := f.state(t); got != "green_status: prepare-failed\nblue_status: activate-failed\n" {
		t.Errorf("unexpected state %q", got)
	}
	for _, line := range f.log(t) {
		if strings.HasPrefix(line, "green-") {
			t.Errorf("green steps must not run, got %s", line)
		}
	}
}

func TestDeploy_PrepareFailure(t *testing.T) {
	f := newFixture(t, map[string]string{"green-check": "exit 1"})
	f.writeState(t, "blue_status: active\n")
	orch := newTestOrchestrator(nil)

	run, err := orch.RunDeploy(context.Background(), f.planPath)

	var deployErr *DeployError
	if !errors.As(err, &deployErr) {
		t.Fatalf("expected DeployError, got %v", err)
	}
	if deployErr.Status != domain.SlotStatusPrepareFailed {
		t.Errorf("expected prepare-failed, got %s", deployErr.Status)
	}
	if run.Outcome != domain.OutcomePrepareFailed {
		t.Errorf("expected outcome prepare-failed, got %s", run.Outcome)
	}

	// Активный слот не тронут, отката нет
	if got := f.state(t); got != "blue_status: active\ngreen_status: prepare-failed\n" {
		t.Errorf("unexpected state %q", got)
	}
	want := slotLog(domain.SlotGreen, domain.PhasePrepare, domain.PhaseCheck)
	if got := f.log(t); !equalLines(got, want) {
		t.Errorf("unexpected log %v", got)
	}
}

func TestDeploy_RollbackFailurePropagates(t *testing.T) {
	f := newFixture(t, map[string]string{
		"green-activate": "exit 1",
		"blue-verify":    "exit 4",
	})
	f.writeState(t, "blue_status: active\n")
	orch := newTestOrchestrator(nil)

	run, err := orch.RunDeploy(context.Background(), f.planPath)

	if !errors.Is(err, ErrRollbackFailed) {
		t.Fatalf("expected ErrRollbackFailed, got %v", err)
	}
	if errors.Is(err, ErrDeployFailed) {
		t.Error("rollback failure is not a recorded deploy failure")
	}

	var cmdErr *steps.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ExitCode != 4 {
		t.Errorf("expected rollback CommandError with exit code 4, got %v", err)
	}
	if run.Outcome != domain.OutcomeAborted {
		t.Errorf("expected outcome aborted, got %s", run.Outcome)
	}

	// Статус отката не записывается
	if got := f.state(t); got != "blue_status: active\ngreen_status: activate-failed\n" {
		t.Errorf("unexpected state %q", got)
	}

	want := []string{"green-prepare", "green-check", "green-activate", "blue-activate", "blue-verify"}
	if got := f.log(t); !equalLines(got, want) {
		t.Errorf("unexpected log %v", got)
	}
}

func TestDeploy_DoneFailureKeepsActive(t *testing.T) {
	f := newFixture(t, map[string]string{"blue-done": "exit 1"})
	orch := newTestOrchestrator(nil)

	run, err := orch.RunDeploy(context.Background(), f.planPath)

	if !errors.Is(err, ErrDoneFailed) {
		t.Fatalf("expected ErrDoneFailed, got %v", err)
	}
	if run.Outcome != domain.OutcomeAborted {
		t.Errorf("expected outcome aborted, got %s", run.Outcome)
	}
	if got := f.state(t); got != "blue_status: active\n" {
		t.Errorf("activation must stay durable, got %q", got)
	}
}

func TestDeploy_StateConflict(t *testing.T) {
	// prepare переписывает запись, как конкурирующий оркестратор
	f := newFixture(t, map[string]string{
		"blue-prepare": `printf 'green_status: active\n' > '{state}'`,
	})
	orch := newTestOrchestrator(nil)

	run, err := orch.RunDeploy(context.Background(), f.planPath)

	if !errors.Is(err, statestore.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
	if run.Outcome != domain.OutcomeAborted {
		t.Errorf("expected outcome aborted, got %s", run.Outcome)
	}

	// Запись чужого писателя не перезаписана
	if got := f.state(t); got != "green_status: active\n" {
		t.Errorf("conflicting flush must not write, got %q", got)
	}

	// done не выполняется после прерванного run
	for _, line := range f.log(t) {
		if line == "blue-done" {
			t.Error("done must not run after a conflict")
		}
	}
}

func TestDeploy_InvalidPlanTouchesNothing(t *testing.T) {
	f := newFixture(t, nil)
	plan, err := engine.LoadPlanFile(f.planPath)
	if err != nil {
		t.Fatalf("load plan: %v", err)
	}

	// Неизвестный шаг в последней фазе другого слота
	plan.Slots[domain.SlotGreen][domain.PhaseDone] = []domain.Step{domain.InvalidStep("{exec: ls}")}

	orch := newTestOrchestrator(nil)
	run, err := orch.Deploy(context.Background(), plan)

	if !errors.Is(err, engine.ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
	if run.Outcome != domain.OutcomeAborted {
		t.Errorf("expected outcome aborted, got %s", run.Outcome)
	}
	if _, err := os.Stat(f.statePath); !errors.Is(err, os.ErrNotExist) {
		t.Error("state record must not be created for an invalid plan")
	}
	if len(f.log(t)) != 0 {
		t.Error("no step may run for an invalid plan")
	}
}

func TestRunDeploy_MissingPlan(t *testing.T) {
	orch := newTestOrchestrator(nil)

	run, err := orch.RunDeploy(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing plan")
	}
	if run != nil {
		t.Error("run should be nil when the plan cannot be loaded")
	}
}

func TestDeploy_Events(t *testing.T) {
	f := newFixture(t, map[string]string{"blue-verify": "exit 1"})
	events := &recordingEvents{}
	orch := newTestOrchestrator(events)

	_, _ = orch.RunDeploy(context.Background(), f.planPath)

	want := []string{
		"started:blue",
		"phase:blue-prepare",
		"phase:blue-check",
		"phase:blue-activate",
		"phase:blue-verify:failed",
		"finished:activate-failed",
	}
	if !equalLines(events.events, want) {
		t.Errorf("unexpected events:\n got: %v\nwant: %v", events.events, want)
	}
}

type recordingHistory struct {
	runs []domain.Run
	err  error
}

func (h *recordingHistory) Save(_ context.Context, run *domain.Run) error {
	h.runs = append(h.runs, *run)
	return h.err
}

func TestDeploy_History(t *testing.T) {
	f := newFixture(t, map[string]string{"green-prepare": "exit 1"})
	history := &recordingHistory{}
	orch := New(Config{
		Runner:  steps.NewRunner(steps.Config{Stdout: io.Discard, Stderr: io.Discard, Logger: telemetry.Discard()}),
		History: history,
		Logger:  telemetry.Discard(),
	})

	if _, err := orch.RunDeploy(context.Background(), f.planPath); err != nil {
		t.Fatalf("first deploy: %v", err)
	}
	if _, err := orch.RunDeploy(context.Background(), f.planPath); !errors.Is(err, ErrDeployFailed) {
		t.Fatalf("expected ErrDeployFailed, got %v", err)
	}

	if len(history.runs) != 2 {
		t.Fatalf("expected 2 saved runs, got %d", len(history.runs))
	}
	if history.runs[0].Outcome != domain.OutcomeActive || history.runs[1].Outcome != domain.OutcomePrepareFailed {
		t.Errorf("unexpected outcomes %s, %s", history.runs[0].Outcome, history.runs[1].Outcome)
	}
	if !history.runs[1].IsFinished() || history.runs[1].Error == "" {
		t.Error("saved run should be finished and carry the error")
	}
	if last := orch.LastRun(); last == nil || last.Target != domain.SlotGreen {
		t.Errorf("LastRun should be the green run, got %+v", last)
	}
}

func TestDeploy_HistoryErrorIgnored(t *testing.T) {
	f := newFixture(t, nil)
	orch := New(Config{
		Runner:  steps.NewRunner(steps.Config{Stdout: io.Discard, Stderr: io.Discard, Logger: telemetry.Discard()}),
		History: &recordingHistory{err: errors.New("db down")},
		Logger:  telemetry.Discard(),
	})

	run, err := orch.RunDeploy(context.Background(), f.planPath)
	if err != nil {
		t.Fatalf("history failure must not fail the run: %v", err)
	}
	if run.Outcome != domain.OutcomeActive {
		t.Errorf("expected active, got %s", run.Outcome)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.writeState(t, "green_status: active\nblue_status: backup\n")

	plan, err := engine.LoadPlanFile(f.planPath)
	if err != nil {
		t.Fatal(err)
	}

	state, err := newTestOrchestrator(nil).Status(context.Background(), plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status(domain.SlotGreen) != domain.SlotStatusActive {
		t.Errorf("expected green active, got %s", state.Status(domain.SlotGreen))
	}
	if keys := state.Keys(); keys[0] != "green_status" {
		t.Errorf("key order should be preserved, got %v", keys)
	}
}

// --- Trigger Tests ---

func TestTrigger_UsesAgentPlan(t *testing.T) {
	f := newFixture(t, nil)
	orch := New(Config{
		Runner:   steps.NewRunner(steps.Config{Stdout: io.Discard, Stderr: io.Discard, Logger: telemetry.Discard()}),
		PlanPath: f.planPath,
		Logger:   telemetry.Discard(),
	})

	run, err := orch.Trigger(context.Background(), "", "schedule")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Target != domain.SlotBlue {
		t.Errorf("expected blue, got %s", run.Target)
	}
}

func TestHandleDeployRequest_OnlyAgentPlan(t *testing.T) {
	f := newFixture(t, nil)
	other := newFixture(t, nil)
	orch := New(Config{
		Runner:   steps.NewRunner(steps.Config{Stdout: io.Discard, Stderr: io.Discard, Logger: telemetry.Discard()}),
		PlanPath: f.planPath,
		Logger:   telemetry.Discard(),
	})

	request := func(planPath string) *mq.Delivery {
		msg := mq.NewMessage(mq.MessageTypeDeployRequested, mq.DeployRequestPayload{PlanPath: planPath})
		return &mq.Delivery{Message: *msg, Queue: string(mq.QueueDeployRequests)}
	}

	err := orch.handleDeployRequest(context.Background(), request(other.planPath))
	if !errors.Is(err, ErrForeignPlan) {
		t.Fatalf("expected ErrForeignPlan, got %v", err)
	}
	if _, statErr := os.Stat(other.statePath); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("foreign plan must not be deployed")
	}
	if other.log(t) != nil {
		t.Errorf("foreign plan steps ran: %v", other.log(t))
	}

	if err := orch.handleDeployRequest(context.Background(), request(f.planPath)); err != nil {
		t.Fatalf("agent plan request: %v", err)
	}
	if err := orch.handleDeployRequest(context.Background(), request("")); err != nil {
		t.Fatalf("empty plan request: %v", err)
	}
	if got := f.state(t); got != "blue_status: backup\ngreen_status: active\n" {
		t.Errorf("unexpected state after two requests %q", got)
	}
}

func TestTrigger_NoPlan(t *testing.T) {
	orch := newTestOrchestrator(nil)

	if _, err := orch.Trigger(context.Background(), "", "test"); !errors.Is(err, ErrNoPlan) {
		t.Errorf("expected ErrNoPlan, got %v", err)
	}
}

func TestTrigger_Stopped(t *testing.T) {
	orch := newTestOrchestrator(nil)
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	orch.Stop()

	if _, err := orch.Trigger(context.Background(), "plan.yaml", "test"); !errors.Is(err, ErrOrchestratorStopped) {
		t.Errorf("expected ErrOrchestratorStopped, got %v", err)
	}
}

func TestIsRunOutcome(t *testing.T) {
	if !isRunOutcome(&DeployError{Slot: domain.SlotBlue, Status: domain.SlotStatusPrepareFailed}) {
		t.Error("DeployError is a run outcome")
	}
	if !isRunOutcome(&statestore.ConflictError{Location: "state.yaml"}) {
		t.Error("conflict is a run outcome")
	}
	if isRunOutcome(ErrNoPlan) {
		t.Error("missing plan is not a run outcome")
	}
}

// --- DeployError Tests ---

func TestDeployError(t *testing.T) {
	cause := &steps.CommandError{Command: "false", ExitCode: 1, PID: 42}
	err := &DeployError{
		Slot:         domain.SlotGreen,
		Status:       domain.SlotStatusActivateFailed,
		RolledBack:   true,
		RollbackSlot: domain.SlotBlue,
		Err:          cause,
	}

	expected := `deploy green: activate-failed (rolled back to blue): command "false" failed (exit code 1, pid 42)`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrDeployFailed) || !errors.Is(err, steps.ErrCommandFailed) {
		t.Error("DeployError should match both ErrDeployFailed and the step error")
	}
}
