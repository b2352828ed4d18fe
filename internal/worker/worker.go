package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conductor/internal/claims"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 5 * time.Second
	defaultRunTimeout   = 5 * time.Minute
	defaultPrefetch     = 5
)

// Worker захватывает runs и выполняет их jobs.
//
// Worker — stateless компонент системы, который:
//   - Узнаёт о новых runs из очереди RabbitMQ (event-driven)
//   - Периодически пытается сделать claim (polling fallback)
//   - Выполняет ready jobs строго в порядке выдачи сервером
//   - Отчитывается о каждом переходе сообщениями протокола
//
// Workers масштабируются горизонтально — claim атомарен, поэтому
// несколько экземпляров могут работать против одной очереди.
type Worker struct {
	id       string
	protocol Protocol
	executor *Executor

	// MQ (опционально: без подключения остаётся только polling)
	conn     *mq.Connection
	consumer *mq.Consumer

	pollInterval time.Duration
	runTimeout   time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	wake       chan struct{}
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// ID — идентификатор воркера, записывается в захваченные runs.
	ID string

	// Protocol — транспорт сообщений протокола (Client или claims.Queue).
	Protocol Protocol

	// Conn — подключение к RabbitMQ для подсказок run.available.
	// Nil — воркер работает только по polling.
	Conn *mq.Connection

	// PollInterval — интервал попыток claim (default: 5s).
	PollInterval time.Duration

	// RunTimeout — потолок времени выполнения одного run (default: 5m).
	RunTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := cfg.ID
	if id == "" {
		id = "worker-" + uuid.NewString()[:8]
	}

	return &Worker{
		id:           id,
		protocol:     cfg.Protocol,
		executor:     &Executor{},
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		runTimeout:   runTimeout,
		logger:       logger,
		wake:         make(chan struct{}, 1),
	}
}

// Start запускает Worker.
//
// Запускает:
//   - Consumer для runs.available (если есть подключение к MQ)
//   - Claim-цикл
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"worker_id", w.id,
		"poll_interval", w.pollInterval,
		"run_timeout", w.runTimeout,
	)

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueRunsAvailable),
			Handler:  w.handleRunAvailable,
			Prefetch: defaultPrefetch,
		})

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("run consumer error", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.claimLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// handleRunAvailable — подсказка из MQ: в очереди появился run.
// Payload не важен, claim сам выберет старейший.
func (w *Worker) handleRunAvailable(_ context.Context, _ *mq.Delivery) error {
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// claimLoop — цикл claim. Просыпается по таймеру и по подсказкам из MQ,
// после удачного claim сразу пробует снова: очередь дренируется до пустой.
func (w *Worker) claimLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первая попытка сразу при старте
	w.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			w.drain(ctx)
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain захватывает и выполняет runs, пока очередь не опустеет.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		claimed, err := w.protocol.Claim(ctx, w.id)
		if err != nil {
			if !errors.Is(err, claims.ErrNoRuns) {
				w.logger.Error("claim failed", "error", err)
			}
			return
		}

		telemetry.RunsClaimed.Inc()
		if err := w.ExecuteRun(ctx, claimed); err != nil {
			w.logger.Error("run execution failed",
				"run_id", claimed.Run.ID,
				"error", err,
			)
		}
	}
}

// ExecuteRun выполняет захваченный run от start_run до complete_run.
//
// Jobs выполняются в порядке очереди ready: сервер выдаёт стартовый
// набор при claim, остальные приходят в ответах complete_step. Фатальный
// exit_reason финализирует run на сервере — воркер просто прекращает
// обработку.
func (w *Worker) ExecuteRun(ctx context.Context, claimed *claims.ClaimedRun) error {
	runID := claimed.Run.ID
	logger := telemetry.WithRunID(w.logger, runID.String())
	logger.Info("executing run", "workflow", claimed.Snapshot.Name)

	// runCtx ограничивает только выполнение тел jobs: отчёты протокола
	// должны уходить и после истечения таймаута.
	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	if err := w.protocol.StartRun(ctx, runID); err != nil {
		return err
	}

	// Тела dataclips, известные этой стороне: корневой плюс выходы
	// наших же steps. После рестарта сервера неизвестный clip
	// замещается корневым.
	bodies := map[uuid.UUID]map[string]any{}
	if claimed.RootDataclip != nil {
		bodies[claimed.RootDataclip.ID] = claimed.RootDataclip.Body
	}

	queue := append([]claims.ReadyJob(nil), claimed.Ready...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		job := claimed.Snapshot.JobByID(next.JobID)
		if job == nil {
			logger.Error("ready job missing from snapshot", "job_id", next.JobID)
			continue
		}

		started, err := w.protocol.StartStep(ctx, runID, next.JobID)
		if err != nil {
			if errors.Is(err, claims.ErrJobNotReady) || errors.Is(err, ErrServerRejected) {
				logger.Warn("start_step rejected", "job_id", next.JobID, "error", err)
				continue
			}
			return err
		}
		step := started.Step
		stepLogger := telemetry.WithStepID(logger, step.ID.String())
		stepLogger.Info("step started", "job", job.Name)

		input, ok := bodies[next.InputDataclipID]
		if !ok && claimed.RootDataclip != nil {
			input = claimed.RootDataclip.Body
		}

		result := w.executor.Run(runCtx, *job, input, started.Credential)

		if len(result.Logs) > 0 {
			if err := w.protocol.AppendLog(ctx, runID, &step.ID, result.Logs); err != nil {
				stepLogger.Warn("append_log failed", "error", err)
			}
		}

		ready, err := w.protocol.CompleteStep(ctx, runID, step.ID, result.ExitReason, result.Output)
		if err != nil {
			return err
		}
		telemetry.StepsCompleted.WithLabelValues(string(result.ExitReason)).Inc()
		stepLogger.Info("step finished", "exit_reason", result.ExitReason)

		if result.ExitReason.IsRunFatal() {
			// Сервер уже финализировал run
			return nil
		}

		// Сервер выдаёт downstream jobs выходной dataclip step'а; при
		// пустом выходе его тело — пустой объект.
		downstream := result.Output
		if downstream == nil {
			downstream = map[string]any{}
		}
		for _, rj := range ready {
			bodies[rj.InputDataclipID] = downstream
		}
		queue = append(queue, ready...)
	}

	finalState := domain.RunStateSuccess
	if err := w.protocol.CompleteRun(ctx, runID, finalState, ""); err != nil {
		return err
	}
	telemetry.RunsFinished.WithLabelValues(string(finalState)).Inc()
	logger.Info("run finished", "state", finalState)
	return nil
}
