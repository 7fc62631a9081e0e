package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/statestore"
)

func TestNewPool_NotConfigured(t *testing.T) {
	if _, err := NewPool(context.Background(), ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNullString(t *testing.T) {
	if nullString("") != nil {
		t.Error("empty string should map to NULL")
	}
	if s := nullString("boom"); s == nil || *s != "boom" {
		t.Error("non-empty string should be kept")
	}
}

func TestStateRepo_OpenUsesStateFile(t *testing.T) {
	r := NewStateRepo(nil)
	record, err := r.Open(context.Background(), &domain.Plan{StateFile: "/srv/app/state.yaml"})
	if err != nil {
		t.Fatal(err)
	}
	if record.Location() != "/srv/app/state.yaml" {
		t.Errorf("unexpected location %q", record.Location())
	}
}

// --- Postgres integration (STATE_DB_URL) ---

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := DatabaseURLFromEnv()
	if dsn == "" {
		t.Skip("STATE_DB_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return pool
}

func TestStateRecord_CompareAndSwap(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	location := "test-" + uuid.NewString()
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM switchover_state WHERE location = $1`, location)
	})

	record := NewStateRepo(pool).Record(location)

	snap, err := record.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.Exists {
		t.Fatal("new location should not exist")
	}

	first := []byte("blue_status: active\n")
	if err := record.CompareAndSwap(ctx, snap, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	// второй создатель проигрывает
	if err := record.CompareAndSwap(ctx, snap, first); !errors.Is(err, statestore.ErrStateConflict) {
		t.Errorf("expected conflict on concurrent create, got %v", err)
	}

	current := statestore.Snapshot{Content: first, Exists: true}
	second := []byte("blue_status: backup\ngreen_status: active\n")
	if err := record.CompareAndSwap(ctx, current, second); err != nil {
		t.Fatalf("update: %v", err)
	}

	// устаревший снимок
	if err := record.CompareAndSwap(ctx, current, first); !errors.Is(err, statestore.ErrStateConflict) {
		t.Errorf("expected conflict on stale snapshot, got %v", err)
	}

	snap, err = record.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(snap.Content) != string(second) {
		t.Errorf("unexpected content %q", snap.Content)
	}
}

func TestRunRepo_SaveAndList(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	r := NewRunRepo(pool)

	source := "/test/" + uuid.NewString() + "/plan.yaml"
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM switchover_runs WHERE plan_source = $1`, source)
	})

	first := domain.NewRun(source)
	first.Target, first.Other = domain.SlotBlue, domain.SlotGreen
	first.Finish(domain.OutcomeActive, nil)

	second := domain.NewRun(source)
	second.StartedAt = first.StartedAt.Add(time.Second)
	second.Target, second.Other = domain.SlotGreen, domain.SlotBlue
	second.Finish(domain.OutcomeRolledBack, errors.New("verify failed"))

	for _, run := range []*domain.Run{first, second} {
		if err := r.Save(ctx, run); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	runs, err := r.List(ctx, RunFilter{PlanSource: source})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", runs)
	}
	if runs[0].Error != "verify failed" || runs[1].Error != "" {
		t.Errorf("unexpected errors %q, %q", runs[0].Error, runs[1].Error)
	}

	got, err := r.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Outcome != domain.OutcomeActive || got.Target != domain.SlotBlue {
		t.Errorf("unexpected run %+v", got)
	}

	if _, err := r.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
