package repo

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnvDatabaseURL — переменная окружения с DSN базы состояний.
const EnvDatabaseURL = "STATE_DB_URL"

// DatabaseURLFromEnv возвращает STATE_DB_URL (пусто — Postgres не используется).
func DatabaseURLFromEnv() string {
	return os.Getenv(EnvDatabaseURL)
}

// NewPool открывает пул соединений и проверяет доступность базы.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty database url", ErrNotConfigured)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	// CLI делает несколько запросов за run, агенту хватает пары соединений.
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// schema — таблицы записи состояния и истории run.
const schema = `
CREATE TABLE IF NOT EXISTS switchover_state (
	location   TEXT PRIMARY KEY,
	content    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS switchover_runs (
	id          UUID PRIMARY KEY,
	plan_source TEXT NOT NULL,
	target      TEXT NOT NULL,
	other       TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS switchover_runs_started_at_idx ON switchover_runs (started_at DESC);
`

// EnsureSchema создаёт таблицы, если их нет. Идемпотентна.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
