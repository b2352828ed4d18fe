package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conductor/internal/admission"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunAvailable  MessageType = "run.available"
	MessageTypeEventReceived MessageType = "event.received"
	MessageTypeLimiterGossip MessageType = "limiter.gossip"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
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

// RunAvailablePayload — payload для уведомления о новом available run.
type RunAvailablePayload struct {
	RunID       uuid.UUID `json:"run_id"`
	WorkOrderID uuid.UUID `json:"work_order_id"`
}

// EventReceivedPayload — payload внешнего события для триггера.
type EventReceivedPayload struct {
	TriggerID uuid.UUID      `json:"trigger_id"`
	Body      map[string]any `json:"body"`
}

// GossipPayload — снимок admission-записей одного узла.
type GossipPayload struct {
	NodeID  string             `json:"node_id"`
	Records []admission.Record `json:"records"`
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
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
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

// PublishRunAvailable публикует уведомление о новом available run.
// Потребитель: Worker (подсказка, когда делать claim без опроса).
func (p *Publisher) PublishRunAvailable(ctx context.Context, runID, workOrderID uuid.UUID) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeRunAvailable,
		Payload:   RunAvailablePayload{RunID: runID, WorkOrderID: workOrderID},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeRuns, RoutingKeyAvailable, msg)
}

// PublishEvent публикует внешнее событие триггера.
// Потребитель: Scheduler, который делает submit.
func (p *Publisher) PublishEvent(ctx context.Context, triggerID uuid.UUID, body map[string]any) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeEventReceived,
		Payload:   EventReceivedPayload{TriggerID: triggerID, Body: body},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeEvents, RoutingKeyIngest, msg)
}

// PublishGossip рассылает снимок admission-записей узла всем остальным.
// Gossip-сообщения транзиентные: потерянная рассылка замещается следующей.
func (p *Publisher) PublishGossip(ctx context.Context, nodeID string, records []admission.Record) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeLimiterGossip,
		Payload:   GossipPayload{NodeID: nodeID, Records: records},
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal gossip: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeGossip),
			"", // fanout игнорирует routing key
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				MessageId:   msg.ID,
				Timestamp:   msg.Timestamp,
				Body:        body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish gossip: %w", err)
		}
		return nil
	})
}
