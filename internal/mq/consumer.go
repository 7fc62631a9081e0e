package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed — брокер закрыл канал доставки (обрыв соединения).
var ErrDeliveriesClosed = errors.New("deliveries channel closed")

// ErrUnexpectedType — тип сообщения не принимается этим consumer.
var ErrUnexpectedType = errors.New("unexpected message type")

// Handler обрабатывает одно сообщение.
// Ошибка означает, что сообщение не обработано.
type Handler func(ctx context.Context, delivery *Delivery) error

// Delivery — разобранное сообщение из очереди.
type Delivery struct {
	Message     Message
	Queue       string
	Redelivered bool
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Name — consumer tag, виден в management UI. Пусто — сгенерирует брокер.
	Name string

	// Handler — обработчик сообщений.
	Handler Handler

	// Accept — принимаемые типы сообщений. Пусто — любые.
	// Сообщения других типов отклоняются без вызова Handler.
	Accept []MessageType

	// Prefetch — сколько сообщений брокер отдаёт без ack. По умолчанию 1.
	Prefetch int

	// Requeue — возвращать ли сообщение в очередь при ошибке Handler.
	// false — сообщение уходит в DLQ очереди.
	Requeue bool
}

// Consumer читает сообщения из очереди RabbitMQ и переживает переподключения.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
	cfg    ConsumerConfig

	mu         sync.Mutex
	stopped    bool
	cancelFunc context.CancelFunc
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:   conn,
		logger: logger.With("queue", cfg.Queue),
		cfg:    cfg,
	}
}

// Start блокируется, пока ctx не отменён или не вызван Stop.
// Stop может вызываться из другой горутины, в том числе до Start.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return context.Canceled
	}
	c.cancelFunc = cancel
	c.mu.Unlock()

	for {
		deliveries, err := c.subscribe()
		if err == nil {
			c.logger.Info("consumer started", "consumer", c.cfg.Name)
			err = c.drain(ctx, deliveries)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("consumer interrupted, waiting for reconnect", "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// auto-ack выключен: ack/nack после Handler
	deliveries, err := ch.Consume(c.cfg.Queue, c.cfg.Name, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.settle(raw, c.handle(ctx, raw))
		}
	}
}

// settlement — чем закончилась обработка сообщения.
type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleReject
)

// handle разбирает и обрабатывает сообщение, не трогая ack.
func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) settlement {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message", "error", err, "body", string(raw.Body))
		return settleReject
	}

	log := c.logger.With("message_id", msg.ID, "type", msg.Type)

	if !c.accepts(msg.Type) {
		log.Error("rejecting message", "error", ErrUnexpectedType)
		return settleReject
	}

	log.Debug("received message", "redelivered", raw.Redelivered)

	err := c.cfg.Handler(ctx, &Delivery{
		Message:     msg,
		Queue:       c.cfg.Queue,
		Redelivered: raw.Redelivered,
	})
	if err != nil {
		log.Error("handler failed", "error", err, "requeue", c.cfg.Requeue)
		if c.cfg.Requeue {
			return settleRequeue
		}
		return settleReject
	}
	return settleAck
}

func (c *Consumer) accepts(t MessageType) bool {
	return len(c.cfg.Accept) == 0 || slices.Contains(c.cfg.Accept, t)
}

func (c *Consumer) settle(raw amqp.Delivery, s settlement) {
	var err error
	switch s {
	case settleAck:
		err = raw.Ack(false)
	case settleRequeue:
		err = raw.Nack(false, true)
	default:
		err = raw.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn("failed to settle message", "error", err)
	}
}

// ParsePayload приводит payload сообщения к типу T.
// После json.Unmarshal в Message payload лежит как map[string]any.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
