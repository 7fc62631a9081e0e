package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Switchover/internal/mq"
	"github.com/shaiso/Switchover/internal/orchestrator"
	"github.com/shaiso/Switchover/internal/repo"
	"github.com/shaiso/Switchover/internal/steps"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// EnvShell — переменная окружения с интерпретатором для шагов shell.
const EnvShell = "SWITCHOVER_SHELL"

// ErrNoBroker — команда требует RabbitMQ, а URL не задан.
var ErrNoBroker = errors.New("rabbitmq url is not set (use --rabbitmq-url or RABBITMQ_URL)")

// Env — общие настройки команд: PersistentFlags поверх переменных окружения.
type Env struct {
	// StateDB — DSN Postgres для записи состояния и истории (пусто — файл).
	StateDB string

	// RabbitURL — адрес RabbitMQ для событий и запросов.
	RabbitURL string

	// Shell — интерпретатор для шагов shell.
	Shell string
}

// EnvFromOS заполняет Env значениями по умолчанию из окружения.
func EnvFromOS() Env {
	shell := os.Getenv(EnvShell)
	if shell == "" {
		shell = steps.DefaultShell
	}

	return Env{
		StateDB:   repo.DatabaseURLFromEnv(),
		RabbitURL: os.Getenv("RABBITMQ_URL"),
		Shell:     shell,
	}
}

// deps — внешние ресурсы одной команды.
type deps struct {
	pool    *pgxpool.Pool
	conn    *mq.Connection
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// openDeps открывает Postgres (если задан StateDB) и, если задано имя
// соединения broker, RabbitMQ. Недоступный брокер не ошибка: события просто
// не публикуются.
func (e Env) openDeps(ctx context.Context, logger *slog.Logger, broker string) (*deps, error) {
	d := &deps{
		metrics: telemetry.NewMetrics(),
		logger:  logger,
	}

	if e.StateDB != "" {
		pool, err := repo.NewPool(ctx, e.StateDB)
		if err != nil {
			return nil, fmt.Errorf("connect state db: %w", err)
		}
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		d.pool = pool
		logger.Debug("state db connected")
	}

	if broker != "" {
		if e.RabbitURL == "" {
			logger.Warn("rabbitmq url is not set, events disabled")
			return d, nil
		}

		conn, err := e.connectBroker(ctx, logger, broker)
		if err != nil {
			logger.Warn("RabbitMQ not available, events disabled", "error", err)
			return d, nil
		}
		d.conn = conn
	}

	return d, nil
}

// connectBroker подключается к RabbitMQ и объявляет топологию.
func (e Env) connectBroker(ctx context.Context, logger *slog.Logger, name string) (*mq.Connection, error) {
	if e.RabbitURL == "" {
		return nil, ErrNoBroker
	}

	conn, err := mq.NewConnection(ctx, e.RabbitURL, name, logger)
	if err != nil {
		return nil, err
	}

	if err := mq.SetupTopology(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setup topology: %w", err)
	}
	return conn, nil
}

// orchestratorConfig собирает конфигурацию Orchestrator из открытых ресурсов.
func (d *deps) orchestratorConfig(env Env, stdout, stderr io.Writer) orchestrator.Config {
	cfg := orchestrator.Config{
		Runner: steps.NewRunner(steps.Config{
			Shell:   env.Shell,
			Stdout:  stdout,
			Stderr:  stderr,
			Metrics: d.metrics,
			Logger:  d.logger,
		}),
		Metrics: d.metrics,
		Logger:  d.logger,
	}

	if d.pool != nil {
		cfg.Records = repo.NewStateRepo(d.pool).Open
		cfg.History = repo.NewRunRepo(d.pool)
	}

	if d.conn != nil {
		cfg.Events = mq.NewEventPublisher(mq.NewPublisher(d.conn, d.logger), d.logger)
	}

	return cfg
}

// Close освобождает ресурсы.
func (d *deps) Close() {
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.logger.Warn("close rabbitmq connection", "error", err)
		}
	}
	if d.pool != nil {
		d.pool.Close()
	}
}
