package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNoChannel — соединение ещё не открыло канал (или переподключается).
var ErrNoChannel = errors.New("no channel available")

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeDeployRequested MessageType = "deploy.requested"
	MessageTypeDeployStarted   MessageType = "deploy.started"
	MessageTypeDeployPhase     MessageType = "deploy.phase"
	MessageTypeDeployFinished  MessageType = "deploy.finished"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// DeployRequestPayload — запрос на развёртывание для агента.
type DeployRequestPayload struct {
	// PlanPath — план; пусто — план, с которым запущен агент.
	PlanPath string `json:"plan_path,omitempty"`

	// RequestedBy — кто запросил (пользователь, хост).
	RequestedBy string `json:"requested_by,omitempty"`
}

// DeployStartedPayload — run начался, слоты выбраны.
type DeployStartedPayload struct {
	RunID      uuid.UUID `json:"run_id"`
	PlanSource string    `json:"plan_source"`
	Target     string    `json:"target"`
	Other      string    `json:"other"`
}

// DeployPhasePayload — фаза завершилась.
type DeployPhasePayload struct {
	RunID      uuid.UUID `json:"run_id"`
	Slot       string    `json:"slot"`
	Phase      string    `json:"phase"`
	DurationMs int64     `json:"duration_ms"`
	Failed     bool      `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// DeployFinishedPayload — run завершился.
type DeployFinishedPayload struct {
	RunID      uuid.UUID `json:"run_id"`
	Target     string    `json:"target"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishDeployRequest публикует запрос на развёртывание.
// Потребитель: агент. Возвращает ID сообщения.
func (p *Publisher) PublishDeployRequest(ctx context.Context, payload DeployRequestPayload) (string, error) {
	msg := NewMessage(MessageTypeDeployRequested, payload)
	if err := p.Publish(ctx, ExchangeRequests, RoutingKeyDeploy, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// PublishEvent публикует событие развёртывания.
// Routing key совпадает с типом сообщения.
func (p *Publisher) PublishEvent(ctx context.Context, msgType MessageType, payload any) error {
	return p.Publish(ctx, ExchangeEvents, RoutingKey(msgType), NewMessage(msgType, payload))
}
