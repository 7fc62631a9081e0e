package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/mq"
	"github.com/shaiso/Switchover/internal/statestore"
	"github.com/shaiso/Switchover/internal/steps"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// RecordOpener открывает запись состояния для плана.
type RecordOpener func(ctx context.Context, plan *domain.Plan) (statestore.Record, error)

// FileRecords — RecordOpener по умолчанию: файл plan.StateFile.
func FileRecords(_ context.Context, plan *domain.Plan) (statestore.Record, error) {
	return statestore.NewFileRecord(plan.StateFile), nil
}

// RunHistory сохраняет завершённые run (repo.RunRepo).
type RunHistory interface {
	Save(ctx context.Context, run *domain.Run) error
}

// Orchestrator выполняет развёртывания blue/green.
//
// Orchestrator:
//   - Открывает запись состояния и выбирает целевой слот
//   - Выполняет группы фаз через steps.Runner
//   - Записывает статусы слотов и откатывается на другой слот при ошибке активации
//   - В режиме агента получает запросы на развёртывание из RabbitMQ
//
// Все развёртывания одного Orchestrator выполняются строго последовательно.
type Orchestrator struct {
	runner  *steps.Runner
	records RecordOpener
	events  Events
	history RunHistory
	metrics *telemetry.Metrics

	// MQ (только агент)
	conn            *mq.Connection
	requestConsumer *mq.Consumer
	planPath        string

	// deployMu сериализует run: одновременно выполняется не больше одного.
	deployMu sync.Mutex

	lastRun   *domain.Run
	lastRunMu sync.RWMutex

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Runner — исполнитель фаз (опционально; если nil — steps.NewRunner с Logger).
	Runner *steps.Runner

	// Records — где хранится запись состояния (default: FileRecords).
	Records RecordOpener

	// Events — получатель событий развёртывания (default: только лог).
	Events Events

	// History — история run (опционально).
	History RunHistory

	// Metrics — метрики (опционально).
	Metrics *telemetry.Metrics

	// Conn — соединение с RabbitMQ для приёма запросов (только агент).
	Conn *mq.Connection

	// PlanPath — план для запросов без plan_path и для запуска по расписанию.
	PlanPath string

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runner := cfg.Runner
	if runner == nil {
		runner = steps.NewRunner(steps.Config{
			Metrics: cfg.Metrics,
			Logger:  logger,
		})
	}

	records := cfg.Records
	if records == nil {
		records = FileRecords
	}

	events := cfg.Events
	if events == nil {
		events = logEvents{logger: logger}
	}

	return &Orchestrator{
		runner:   runner,
		records:  records,
		events:   events,
		history:  cfg.History,
		metrics:  cfg.Metrics,
		conn:     cfg.Conn,
		planPath: cfg.PlanPath,
		logger:   logger,
	}
}

// Start запускает приём запросов на развёртывание из очереди.
//
// Без Conn ничего не делает: агент тогда работает только по расписанию.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.IsStopped() {
		return ErrOrchestratorStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	if o.conn == nil {
		o.logger.Info("orchestrator started without broker, deploy requests disabled")
		return nil
	}

	o.requestConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueDeployRequests),
		Name:     "switchover-agent",
		Handler:  o.handleDeployRequest,
		Accept:   []mq.MessageType{mq.MessageTypeDeployRequested},
		Prefetch: 1,
	})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.requestConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.Error("deploy request consumer error", "error", err)
		}
	}()

	o.logger.Info("orchestrator started", "plan", o.planPath)
	return nil
}

// Stop останавливает приём запросов и ждёт завершения горутин.
//
// Текущий run получает отмену контекста: его шаг прерывается, статус
// ошибки записывается.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	if o.requestConsumer != nil {
		o.requestConsumer.Stop()
	}

	o.wg.Wait()

	// run, запущенный не из consumer, дописывает статус до выхода
	o.deployMu.Lock()
	o.deployMu.Unlock()

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// PlanPath возвращает план агента.
func (o *Orchestrator) PlanPath() string {
	return o.planPath
}

// LastRun возвращает последний завершённый run или nil.
func (o *Orchestrator) LastRun() *domain.Run {
	o.lastRunMu.RLock()
	defer o.lastRunMu.RUnlock()
	return o.lastRun
}

func (o *Orchestrator) setLastRun(run *domain.Run) {
	o.lastRunMu.Lock()
	defer o.lastRunMu.Unlock()
	o.lastRun = run
}

// Status читает текущую запись состояния плана без изменения.
func (o *Orchestrator) Status(ctx context.Context, plan *domain.Plan) (*domain.DeploymentState, error) {
	record, err := o.records(ctx, plan)
	if err != nil {
		return nil, err
	}

	store, err := statestore.Open(ctx, record)
	if err != nil {
		return nil, err
	}

	return store.State(), nil
}
