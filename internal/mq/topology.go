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
	ExchangeRuns   Exchange = "conductor.runs"
	ExchangeEvents Exchange = "conductor.events"

	// ExchangeGossip — fanout для записей admission-лимитера: каждый узел
	// получает рассылки всех остальных.
	ExchangeGossip Exchange = "conductor.gossip"
)

// Queues — имена очередей.
const (
	// QueueRunsAvailable — уведомления воркерам о новых available runs.
	QueueRunsAvailable Queue = "runs.available"

	// QueueEventsIngest — внешние события (kafka-триггеры), ожидающие submit.
	QueueEventsIngest Queue = "events.ingest"
)

// Routing keys.
const (
	RoutingKeyAvailable RoutingKey = "available"
	RoutingKeyIngest    RoutingKey = "ingest"
)

func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		if err := bindQueues(ch); err != nil {
			return err
		}
		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeRuns, "direct"},
		{ExchangeEvents, "direct"},
		{ExchangeGossip, "fanout"},
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
	queues := []Queue{
		QueueRunsAvailable,
		QueueEventsIngest,
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q), // name
			true,      // durable
			false,     // delete when unused
			false,     // exclusive
			false,     // no-wait
			nil,       // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
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
		{QueueRunsAvailable, RoutingKeyAvailable, ExchangeRuns},
		{QueueEventsIngest, RoutingKeyIngest, ExchangeEvents},
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

// DeclareGossipQueue создаёт персональную очередь узла для gossip и
// привязывает её к fanout-обменнику. Очередь эксклюзивная и исчезает
// вместе с узлом: пропущенные рассылки не копятся, свежий снимок всё
// равно придёт со следующим циклом.
func DeclareGossipQueue(ctx context.Context, conn *Connection, nodeID string) (Queue, error) {
	name := Queue("gossip." + nodeID)
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		_, err := ch.QueueDeclare(
			string(name), // name
			false,        // durable
			true,         // delete when unused
			true,         // exclusive
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare gossip queue: %w", err)
		}
		if err := ch.QueueBind(string(name), "", string(ExchangeGossip), false, nil); err != nil {
			return fmt.Errorf("bind gossip queue: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Conductor RabbitMQ Topology:

    conductor.runs (direct)
    └── runs.available [routing: available]
            Consumer: Worker (подсказка о новых runs)

    conductor.events (direct)
    └── events.ingest [routing: ingest]
            Consumer: Scheduler (submit внешних событий)

    conductor.gossip (fanout)
    └── gossip.<node> [эксклюзивная, per-node]
            Consumer: admission limiter каждого узла
  `
}
