package claims

import (
	"context"
	"log/slog"
	"time"
)

// Значения watchdog по умолчанию.
const (
	DefaultLostAfter     = 5 * time.Minute
	DefaultSweepInterval = 30 * time.Second
	defaultSweepBatch    = 100
)

// Watchdog переводит брошенные runs в состояние lost.
//
// Run считается брошенным, если его claim старше порога, а финального
// состояния так и не поступило. Watchdog — необязательный компонент:
// без него брошенные runs остаются claimed/started до ручного
// вмешательства.
type Watchdog struct {
	queue     *Queue
	logger    *slog.Logger
	lostAfter time.Duration
	interval  time.Duration
}

// WatchdogConfig — конфигурация Watchdog.
type WatchdogConfig struct {
	// Queue — очередь, через которую финализируются потерянные runs.
	Queue *Queue

	// LostAfter — возраст claim, после которого run считается брошенным.
	LostAfter time.Duration

	// SweepInterval — период обхода.
	SweepInterval time.Duration

	// Logger — логгер.
	Logger *slog.Logger
}

// NewWatchdog создаёт Watchdog.
func NewWatchdog(cfg WatchdogConfig) *Watchdog {
	lostAfter := cfg.LostAfter
	if lostAfter <= 0 {
		lostAfter = DefaultLostAfter
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		queue:     cfg.Queue,
		logger:    logger,
		lostAfter: lostAfter,
		interval:  interval,
	}
}

// Run запускает периодический обход. Блокирует до отмены контекста.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error("watchdog sweep failed", "error", err)
			}
		}
	}
}

// Sweep выполняет один обход: находит брошенные runs и финализирует их.
func (w *Watchdog) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-w.lostAfter)
	runs, err := w.queue.store.ListAbandoned(ctx, cutoff, defaultSweepBatch)
	if err != nil {
		return err
	}
	for i := range runs {
		if err := w.queue.MarkLost(ctx, runs[i].ID); err != nil {
			w.logger.Error("mark lost failed", "run_id", runs[i].ID, "error", err)
			continue
		}
	}
	if len(runs) > 0 {
		w.logger.Info("abandoned runs reaped", "count", len(runs))
	}
	return nil
}
