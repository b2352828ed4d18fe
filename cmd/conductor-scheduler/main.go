// Conductor Scheduler — запускает workflows по расписанию.
//
// Scheduler:
//   - По тику выбирает due cron-триггеры и превращает их в submit
//   - Потребляет внешние события из events.ingest и тоже превращает в submit
//   - Лидерство между репликами — pg advisory lock
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conductor/internal/admission"
	"github.com/shaiso/Conductor/internal/config"
	"github.com/shaiso/Conductor/internal/gossip"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/orchestrator"
	"github.com/shaiso/Conductor/internal/repo"
	"github.com/shaiso/Conductor/internal/scheduler"
	"github.com/shaiso/Conductor/internal/store"
	"github.com/shaiso/Conductor/internal/telemetry"
)

const schedLockKey int64 = 727272

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conductor-scheduler")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Persistence: PostgreSQL или in-memory (dev-режим)
	var st store.Store
	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = repo.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("connected to database")
		st = repo.NewStore(pool)
	} else {
		logger.Warn("no database configured, using in-memory store")
		st = store.NewMemory()
	}

	// Лидерство: только один scheduler двигает расписания. Без БД
	// advisory lock недоступен — единственная реплика и так лидер.
	if pool != nil {
		if !acquireLock(ctx, pool, logger) {
			logger.Info("another scheduler holds the lock, standing by")
			waitForLock(ctx, pool, logger)
			if ctx.Err() != nil {
				return
			}
		}
		defer func() {
			_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
		}()
		logger.Info("acquired scheduler lock")
	}

	// RabbitMQ для внешних событий (опционально)
	var mqConn *mq.Connection
	if cfg.MQ.URL != "" {
		mqConn, err = mq.NewConnection(cfg.MQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, cron-only mode", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
		}
	}

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = "sched-" + uuid.NewString()[:8]
	}

	// Scheduler — такой же submit-путь, как webhook: admission применяется
	// и к cron-срабатываниям, лимитер участвует в общем gossip.
	limiter := admission.New(admission.Config{
		NodeID:          nodeID,
		Capacity:        cfg.Admission.Capacity,
		RefillPerSecond: cfg.Admission.RefillPerSecond,
		Logger:          logger,
	})

	if mqConn != nil {
		broadcaster := gossip.New(gossip.Config{
			Limiter:  limiter,
			Conn:     mqConn,
			Interval: cfg.Admission.GossipInterval.Std(),
			Logger:   logger,
		})
		if err := broadcaster.Start(ctx); err != nil {
			logger.Warn("failed to start gossip", "error", err)
		} else {
			defer broadcaster.Stop()
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Store:   st,
		Limiter: limiter,
		Logger:  logger,
	})

	sched := scheduler.New(scheduler.Config{
		Store:        st,
		Orchestrator: orch,
		Conn:         mqConn,
		TickInterval: cfg.Scheduler.TickInterval.Std(),
		Logger:       logger,
	})

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		logger.Info("listening", "addr", cfg.HTTP.MetricsAddr)
		if err := http.ListenAndServe(cfg.HTTP.MetricsAddr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	sched.Stop()
	logger.Info("conductor-scheduler stopped")
}

func acquireLock(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) bool {
	var ok bool
	if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
		logger.Error("lock error", "error", err)
		return false
	}
	return ok
}

// waitForLock периодически пытается стать лидером, пока не получится
// или контекст не отменят.
func waitForLock(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if acquireLock(ctx, pool, logger) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
