package gossip

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conductor/internal/admission"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// defaultInterval — период рассылки собственного снимка.
const defaultInterval = 2 * time.Second

// Broadcaster реплицирует записи admission-лимитера между узлами.
//
// Каждый узел периодически рассылает снимок собственных записей в
// fanout-обменник и вливает (Merge) рассылки остальных узлов из своей
// эксклюзивной очереди. Потеря отдельной рассылки безвредна: следующий
// снимок несёт то же состояние, а merge идемпотентен.
type Broadcaster struct {
	limiter   *admission.Limiter
	conn      *mq.Connection
	publisher *mq.Publisher
	consumer  *mq.Consumer
	interval  time.Duration

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Broadcaster.
type Config struct {
	// Limiter — реплицируемый лимитер.
	Limiter *admission.Limiter

	// Conn — подключение к RabbitMQ.
	Conn *mq.Connection

	// Interval — период рассылки снимка (default: 2s).
	Interval time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Broadcaster.
func New(cfg Config) *Broadcaster {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Broadcaster{
		limiter:   cfg.Limiter,
		conn:      cfg.Conn,
		publisher: mq.NewPublisher(cfg.Conn, logger),
		interval:  interval,
		logger:    logger,
	}
}

// Start объявляет персональную очередь узла и запускает обе горутины:
// потребление чужих рассылок и периодическую публикацию своей.
func (b *Broadcaster) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancelFunc = cancel

	queue, err := mq.DeclareGossipQueue(ctx, b.conn, b.limiter.NodeID())
	if err != nil {
		cancel()
		return err
	}

	b.consumer = mq.NewConsumer(b.conn, b.logger, mq.ConsumerConfig{
		Queue:   string(queue),
		Handler: b.handleGossip,
	})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error("gossip consumer error", "error", err)
		}
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.publishLoop(ctx)
	}()

	b.logger.Info("gossip broadcaster started",
		"node_id", b.limiter.NodeID(),
		"interval", b.interval,
	)
	return nil
}

// Stop останавливает Broadcaster.
func (b *Broadcaster) Stop() {
	if b.cancelFunc != nil {
		b.cancelFunc()
	}
	if b.consumer != nil {
		b.consumer.Stop()
	}
	b.wg.Wait()
}

// publishLoop периодически рассылает снимок собственных записей.
func (b *Broadcaster) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records := b.limiter.Snapshot()
			if len(records) == 0 {
				continue
			}
			if err := b.publisher.PublishGossip(ctx, b.limiter.NodeID(), records); err != nil {
				b.logger.Warn("gossip publish failed", "error", err)
			}
		}
	}
}

// handleGossip вливает рассылку другого узла.
func (b *Broadcaster) handleGossip(_ context.Context, d *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.GossipPayload](&d.Message)
	if err != nil {
		// Битое сообщение повторной обработке не подлежит
		b.logger.Error("malformed gossip payload", "error", err)
		return nil
	}

	// Собственные рассылки приходят через fanout обратно
	if payload.NodeID == b.limiter.NodeID() {
		return nil
	}

	b.limiter.Merge(payload.Records)
	telemetry.GossipMerges.Inc()
	return nil
}
