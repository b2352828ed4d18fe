// Conductor API — фасад оркестрации и серверная сторона протокола воркера.
//
// Один процесс обслуживает:
//   - webhook-триггеры (/i/{trigger_id})
//   - REST API work orders / runs (/api/v1/...)
//   - протокол воркера (/worker/v1/...)
//   - реплицируемый admission-лимитер с gossip через RabbitMQ
//   - watchdog брошенных runs
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conductor/internal/admission"
	"github.com/shaiso/Conductor/internal/api"
	"github.com/shaiso/Conductor/internal/blob"
	"github.com/shaiso/Conductor/internal/claims"
	"github.com/shaiso/Conductor/internal/config"
	"github.com/shaiso/Conductor/internal/gossip"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/orchestrator"
	"github.com/shaiso/Conductor/internal/repo"
	"github.com/shaiso/Conductor/internal/store"
	"github.com/shaiso/Conductor/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_api_http_requests_total",
		Help: "Total HTTP requests handled by conductor_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conductor-api")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = "node-" + uuid.NewString()[:8]
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Persistence: PostgreSQL или in-memory (dev-режим)
	var st store.Store
	if cfg.Database.URL != "" {
		pool, err := repo.NewPool(ctx, cfg.Database.URL)
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

	// RabbitMQ (опционально: без него воркеры работают по опросу,
	// лимитер — без репликации)
	var mqConn *mq.Connection
	var publisher *mq.Publisher
	if cfg.MQ.URL != "" {
		mqConn, err = mq.NewConnection(cfg.MQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running without MQ", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	// Object storage для крупных dataclips (опционально)
	if cfg.Blob.Endpoint != "" {
		blobs, err := blob.New(ctx, blob.Config{
			Endpoint:  cfg.Blob.Endpoint,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			UseSSL:    cfg.Blob.UseSSL,
			Bucket:    cfg.Blob.Bucket,
			Logger:    logger,
		})
		if err != nil {
			logger.Error("failed to connect to blob storage", "error", err)
			os.Exit(1)
		}
		logger.Info("blob storage connected", "bucket", cfg.Blob.Bucket)
		st = blob.WrapStore(st, blobs)
	}

	// Admission-лимитер этого узла
	limiter := admission.New(admission.Config{
		NodeID:          nodeID,
		Capacity:        cfg.Admission.Capacity,
		RefillPerSecond: cfg.Admission.RefillPerSecond,
		Logger:          logger,
	})

	// Репликация лимитера между узлами API
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

	orchCfg := orchestrator.Config{
		Store:   st,
		Limiter: limiter,
		Logger:  logger,
	}
	if publisher != nil {
		orchCfg.Notifier = publisher
	}
	orch := orchestrator.New(orchCfg)

	queue := claims.New(claims.Config{
		Store:  st,
		Logger: logger,
	})

	// Watchdog брошенных runs
	if cfg.Watchdog.Enabled {
		watchdog := claims.NewWatchdog(claims.WatchdogConfig{
			Queue:         queue,
			LostAfter:     cfg.Watchdog.LostAfter.Std(),
			SweepInterval: cfg.Watchdog.SweepInterval.Std(),
			Logger:        logger,
		})
		go watchdog.Run(ctx)
	}

	handler := api.NewHandler(api.Config{
		Store:        st,
		Orchestrator: orch,
		Queue:        queue,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	// Health и metrics на отдельном адресе
	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	metricsMux.Handle("/metrics", promhttp.Handler())

	go func() {
		logger.Info("metrics listening", "addr", cfg.HTTP.MetricsAddr)
		if err := http.ListenAndServe(cfg.HTTP.MetricsAddr, metricsMux); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "node_id", nodeID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
