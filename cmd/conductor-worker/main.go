// Conductor Worker — выполняет runs.
//
// Worker:
//   - Забирает available runs через протокол claim поверх HTTP
//   - Выполняет jobs по порядку DAG, продвигая state между steps
//   - Стримит логи и результаты обратно на сервер
//   - Слушает подсказки run.available из RabbitMQ, чтобы не ждать опроса
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conductor/internal/config"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/telemetry"
	"github.com/shaiso/Conductor/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conductor-worker")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// RabbitMQ для подсказок run.available (опционально)
	var mqConn *mq.Connection
	if cfg.MQ.URL != "" {
		mqConn, err = mq.NewConnection(cfg.MQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
		}
	}

	w := worker.New(worker.Config{
		Protocol:     worker.NewClient(cfg.Worker.ServerURL),
		Conn:         mqConn,
		PollInterval: cfg.Worker.PollInterval.Std(),
		RunTimeout:   cfg.Worker.RunTimeout.Std(),
		Logger:       logger,
	})

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
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

	w.Stop()
	logger.Info("conductor-worker stopped")
}
