package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Пределы восстановления соединения.
const (
	redialBase = time.Second
	redialCap  = 30 * time.Second
)

// ErrNoChannel — канал AMQP недоступен (соединение в процессе восстановления).
var ErrNoChannel = errors.New("mq: no channel available")

// Connection держит одно AMQP-соединение с брокером и один канал поверх
// него. RabbitMQ в Conductor — сигнальная шина (подсказки runs.available,
// события scheduler, gossip admission), поэтому разрыв не фатален:
// Connection сам перенабирает брокер с нарастающей паузой, а потребители
// узнают о восстановлении через ReconnectNotify и переподписываются.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	done        chan struct{}
	reconnected chan struct{}
}

// NewConnection набирает брокер и запускает фоновое сопровождение
// соединения. Ошибка возвращается только для первого dial: дальше
// Connection восстанавливается сам.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	c := &Connection{
		url:         url,
		logger:      logger,
		done:        make(chan struct{}),
		reconnected: make(chan struct{}, 1),
	}
	if err := c.dial(); err != nil {
		return nil, err
	}
	go c.maintain()
	return c, nil
}

func (c *Connection) dial() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// maintain ждёт обрыва текущего соединения и перенабирает брокер,
// удваивая паузу между попытками до redialCap.
func (c *Connection) maintain() {
	for {
		c.mu.RLock()
		conn := c.conn
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return
		}

		lost := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.done:
			return
		case amqpErr := <-lost:
			if amqpErr != nil {
				c.logger.Warn("broker connection lost", "error", amqpErr)
			}
		}

		delay := redialBase
		for {
			select {
			case <-c.done:
				return
			case <-time.After(delay):
			}
			if err := c.dial(); err != nil {
				c.logger.Warn("redial failed", "error", err, "next_attempt_in", delay)
				delay = min(delay*2, redialCap)
				continue
			}
			break
		}

		c.logger.Info("reconnected to RabbitMQ")
		select {
		case c.reconnected <- struct{}{}:
		default:
		}
	}
}

// Channel возвращает текущий AMQP-канал; nil, пока идёт восстановление.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// WithChannel выполняет fn на текущем канале.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	ch := c.Channel()
	if ch == nil {
		return ErrNoChannel
	}
	return fn(ch)
}

// ReconnectNotify возвращает канал, в который пишется событие после
// каждого успешного восстановления соединения.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnected
}

// Close останавливает сопровождение и закрывает канал и соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	ch, conn := c.channel, c.conn
	c.mu.Unlock()

	var firstErr error
	if ch != nil {
		if err := ch.Close(); err != nil {
			firstErr = fmt.Errorf("close channel: %w", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close connection: %w", err)
		}
	}
	if firstErr != nil {
		return firstErr
	}
	c.logger.Info("broker connection closed")
	return nil
}
