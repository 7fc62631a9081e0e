package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeEvents   Exchange = "switchover.events"
	ExchangeRequests Exchange = "switchover.requests"
	ExchangeDLQ      Exchange = "switchover.dlq"
)

// Queues — имена очередей.
const (
	QueueDeployRequests Queue = "switchover.deploy.requests"
	QueueEventsLog      Queue = "switchover.events.log"
	QueueDLQRequests    Queue = "switchover.dlq.requests"
)

// Routing keys.
const (
	RoutingKeyDeploy      RoutingKey = "deploy"
	RoutingKeyAllEvents   RoutingKey = "deploy.#"
	RoutingKeyDLQRequests RoutingKey = "requests"
)

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}

		if err := declareQueues(ch); err != nil {
			return err
		}

		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		// события публикуются с routing key = тип сообщения (deploy.started, ...)
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeRequests, amqp.ExchangeDirect},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQRequests),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// упавший запрос не переотправляется, а уходит в DLQ
		{QueueDeployRequests, dlqArgs},

		{QueueEventsLog, nil},

		{QueueDLQRequests, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueDeployRequests, RoutingKeyDeploy, ExchangeRequests},
		{QueueEventsLog, RoutingKeyAllEvents, ExchangeEvents},
		{QueueDLQRequests, RoutingKeyDLQRequests, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Switchover RabbitMQ Topology:

    switchover.requests (direct)
    └── switchover.deploy.requests [routing: deploy]
            Consumer: agent
            DLQ: switchover.dlq.requests

    switchover.events (topic)
    └── switchover.events.log [routing: deploy.#]
            Consumer: switchover events

    switchover.dlq (direct)
    └── switchover.dlq.requests [routing: requests]
            Manual processing
`
}
