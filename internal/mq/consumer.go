package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение. Ненулевая ошибка возвращает
// сообщение в очередь.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение шины.
type Delivery struct {
	// Message — декодированный конверт Conductor.
	Message Message

	// Raw — исходная AMQP-доставка.
	Raw amqp.Delivery
}

// Ack подтверждает обработку.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение; requeue=true возвращает его в очередь.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// Consumer подписывается на очередь и гонит сообщения через Handler.
//
// Сообщения шины в Conductor — подсказки: runs.available будит claim-цикл
// воркера, events.ingest несёт внешние события scheduler'у, admission.gossip —
// снимки лимитеров. Семантика at-least-once: при обрыве подписка
// пересоздаётся после ReconnectNotify, недоставленная подсказка
// компенсируется polling-циклом получателя.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int

	cancel context.CancelFunc
}

// ConsumerConfig — параметры подписки.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — окно неподтверждённых сообщений (default: 1).
	Prefetch int
}

// NewConsumer создаёт Consumer поверх существующего соединения.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start блокирует до отмены контекста, пересоздавая подписку после
// каждого обрыва соединения.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("subscribe failed", "queue", c.queue, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}
		c.logger.Info("consumer started", "queue", c.queue)

		if err := c.pump(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("delivery stream closed, resubscribing", "queue", c.queue)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
			}
		}
	}
}

// Stop отменяет подписку.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// subscribe выставляет prefetch-окно и открывает поток доставок.
// Auto-ack выключен: подтверждаем после Handler.
func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}
	return deliveries, nil
}

// pump читает поток доставок до отмены контекста или закрытия потока.
func (c *Consumer) pump(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery stream closed")
			}
			c.dispatch(ctx, raw)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		// Битый конверт бессмысленно крутить по кругу
		c.logger.Error("malformed envelope dropped",
			"queue", c.queue,
			"error", err,
		)
		raw.Nack(false, false)
		return
	}

	c.logger.Debug("message received",
		"queue", c.queue,
		"message_id", msg.ID,
		"type", msg.Type,
	)

	if err := c.handler(ctx, &Delivery{Message: msg, Raw: raw}); err != nil {
		c.logger.Error("handler failed",
			"queue", c.queue,
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
		)
		raw.Nack(false, true)
		return
	}
	raw.Ack(false)
}

// ParsePayload декодирует payload конверта в конкретный тип сообщения.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
