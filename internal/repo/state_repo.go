package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/statestore"
)

// StateRepo — записи состояния в Postgres, по одной строке на location.
type StateRepo struct {
	pool *pgxpool.Pool
}

// NewStateRepo создаёт новый StateRepo.
func NewStateRepo(pool *pgxpool.Pool) *StateRepo {
	return &StateRepo{pool: pool}
}

// Record возвращает запись с ключом location.
func (r *StateRepo) Record(location string) *StateRecord {
	return &StateRecord{pool: r.pool, location: location}
}

// Open возвращает запись для плана: ключ — разрешённый путь state_file.
// Сигнатура совпадает с orchestrator.RecordOpener.
func (r *StateRepo) Open(_ context.Context, plan *domain.Plan) (statestore.Record, error) {
	return r.Record(plan.StateFile), nil
}

// StateRecord — statestore.Record поверх строки switchover_state.
//
// Compare-and-swap выполняется одним условным запросом: UPDATE с условием на
// прежнее содержимое или INSERT ... ON CONFLICT DO NOTHING для новой записи.
// Ноль затронутых строк — конфликт.
type StateRecord struct {
	pool     *pgxpool.Pool
	location string
}

// Location возвращает ключ записи.
func (r *StateRecord) Location() string {
	return r.location
}

// Read возвращает текущее содержимое записи.
func (r *StateRecord) Read(ctx context.Context) (statestore.Snapshot, error) {
	query := `SELECT content FROM switchover_state WHERE location = $1`

	var content []byte
	err := r.pool.QueryRow(ctx, query, r.location).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return statestore.Snapshot{}, nil
	}
	if err != nil {
		return statestore.Snapshot{}, fmt.Errorf("read state %s: %w", r.location, err)
	}

	return statestore.Snapshot{Content: content, Exists: true}, nil
}

// CompareAndSwap заменяет содержимое, если оно равно expected.
func (r *StateRecord) CompareAndSwap(ctx context.Context, expected statestore.Snapshot, next []byte) error {
	var (
		query string
		args  []any
	)

	if expected.Exists {
		query = `
			UPDATE switchover_state
			SET content = $2, updated_at = now()
			WHERE location = $1 AND content = $3
		`
		args = []any{r.location, next, expected.Content}
	} else {
		query = `
			INSERT INTO switchover_state (location, content, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (location) DO NOTHING
		`
		args = []any{r.location, next}
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write state %s: %w", r.location, err)
	}
	if result.RowsAffected() == 0 {
		return &statestore.ConflictError{Location: r.location}
	}
	return nil
}
