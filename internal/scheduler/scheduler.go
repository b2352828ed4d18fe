package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/orchestrator"
	"github.com/shaiso/Conductor/internal/store"
)

// Default configuration values.
const (
	defaultTickInterval = 10 * time.Second
	defaultBatchSize    = 100
)

// Scheduler срабатывает cron-триггеры и принимает внешние события.
//
// Две обязанности:
//   - Периодический тик: due cron-триггеры (next_due_at <= now)
//     отправляются через Orchestrator.Submit, после чего next_due_at
//     переводится на следующее срабатывание
//   - Consumer events.ingest: события kafka-триггеров, доставленные
//     через MQ, тоже превращаются в submit
type Scheduler struct {
	store        store.Store
	orchestrator *orchestrator.Orchestrator

	// MQ (опционально: без подключения остаётся только cron)
	conn     *mq.Connection
	consumer *mq.Consumer

	tickInterval time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Scheduler.
type Config struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator

	// Conn — подключение к RabbitMQ для событий kafka-триггеров.
	// Nil — scheduler обрабатывает только cron.
	Conn *mq.Connection

	// TickInterval — период проверки due триггеров (default: 10s).
	TickInterval time.Duration

	// BatchSize — количество триггеров за один тик (default: 100).
	BatchSize int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		conn:         cfg.Conn,
		tickInterval: tickInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.logger.Info("starting scheduler",
		"tick_interval", s.tickInterval,
		"batch_size", s.batchSize,
	)

	if s.conn != nil {
		s.consumer = mq.NewConsumer(s.conn, s.logger, mq.ConsumerConfig{
			Queue:   string(mq.QueueEventsIngest),
			Handler: s.handleEvent,
		})

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("event consumer error", "error", err)
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tickLoop(ctx)
	}()

	s.logger.Info("scheduler started")
	return nil
}

// Stop останавливает Scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler...")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	if s.consumer != nil {
		s.consumer.Stop()
	}
	s.wg.Wait()

	s.logger.Info("scheduler stopped")
}

// tickLoop — цикл периодической проверки due триггеров.
func (s *Scheduler) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick выполняет один тик планировщика.
//
// Ошибка одного триггера не блокирует обработку остальных. Отказ
// admission-контроля не переводит next_due_at: триггер попробует снова
// на следующем тике.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()

	triggers, err := s.store.ListDueCronTriggers(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("list due cron triggers: %w", err)
	}
	if len(triggers) == 0 {
		return nil
	}

	s.logger.Debug("found due cron triggers", "count", len(triggers))

	var fired int
	for i := range triggers {
		if s.fireTrigger(ctx, &triggers[i], now) {
			fired++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", len(triggers),
		"fired", fired,
	)
	return nil
}

// fireTrigger отправляет одно срабатывание cron-триггера.
// Возвращает true, если submit прошёл.
func (s *Scheduler) fireTrigger(ctx context.Context, trigger *domain.Trigger, now time.Time) bool {
	result, err := s.orchestrator.Submit(ctx, trigger.ID, nil)
	switch {
	case err == nil:
		s.logger.Info("cron trigger fired",
			"trigger_id", trigger.ID,
			"work_order_id", result.WorkOrder.ID,
			"run_id", result.Run.ID,
		)

	case errors.Is(err, orchestrator.ErrRateLimited):
		// next_due_at не трогаем: следующий тик попробует снова
		s.logger.Warn("cron trigger rate limited", "trigger_id", trigger.ID)
		return false

	case errors.Is(err, orchestrator.ErrTriggerDisabled),
		errors.Is(err, orchestrator.ErrWorkflowDisabled),
		errors.Is(err, orchestrator.ErrTriggerNotFound):
		// Срабатывание пропускается, но расписание продвигается, чтобы
		// выключенный триггер не возвращался каждый тик
		s.logger.Warn("cron trigger skipped", "trigger_id", trigger.ID, "reason", err)

	default:
		s.logger.Error("cron trigger submit failed", "trigger_id", trigger.ID, "error", err)
		return false
	}

	next, nerr := NextDue(trigger, now)
	if nerr != nil {
		// Некорректное выражение: не продвигаем, оператор увидит лог
		s.logger.Error("failed to calculate next due",
			"trigger_id", trigger.ID,
			"error", nerr,
		)
		return err == nil
	}
	if uerr := s.store.UpdateTriggerNextDue(ctx, trigger.ID, next); uerr != nil {
		s.logger.Error("failed to update next due",
			"trigger_id", trigger.ID,
			"error", uerr,
		)
	}
	return err == nil
}

// handleEvent — событие kafka-триггера из очереди events.ingest.
func (s *Scheduler) handleEvent(ctx context.Context, d *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.EventReceivedPayload](&d.Message)
	if err != nil {
		// Битое сообщение повторной обработке не подлежит
		s.logger.Error("malformed event payload", "error", err)
		return nil
	}

	_, err = s.orchestrator.Submit(ctx, payload.TriggerID, payload.Body)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, orchestrator.ErrRateLimited):
		// Requeue: событие дождётся пополнения bucket'а
		return err
	case errors.Is(err, orchestrator.ErrTriggerNotFound),
		errors.Is(err, orchestrator.ErrTriggerDisabled),
		errors.Is(err, orchestrator.ErrWorkflowDisabled):
		s.logger.Warn("event dropped", "trigger_id", payload.TriggerID, "reason", err)
		return nil
	default:
		return err
	}
}
