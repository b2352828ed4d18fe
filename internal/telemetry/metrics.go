package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики ядра, общие для всех сервисов. Сервис-специфичные метрики
// (HTTP-счётчики) живут в своих cmd-пакетах.
var (
	// WorkOrdersSubmitted — принятые события триггеров.
	WorkOrdersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_work_orders_submitted_total",
		Help: "Work orders created from admitted trigger events",
	})

	// SubmitsRateLimited — события, отвергнутые admission-контролем.
	SubmitsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_submits_rate_limited_total",
		Help: "Trigger events rejected by the admission limiter",
	})

	// RunsClaimed — runs, выданные воркерам.
	RunsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_runs_claimed_total",
		Help: "Runs claimed by workers",
	})

	// RunsFinished — завершённые runs по финальному состоянию.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_runs_finished_total",
		Help: "Finished runs by final state",
	}, []string{"state"})

	// StepsCompleted — завершённые steps по exit_reason.
	StepsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_steps_completed_total",
		Help: "Completed steps by exit reason",
	}, []string{"exit_reason"})

	// RunDuration — продолжительность выполнения run.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conductor_run_duration_seconds",
		Help:    "Run duration from start to finish",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// GossipMerges — принятые gossip-рассылки лимитера.
	GossipMerges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_limiter_gossip_merges_total",
		Help: "Admission limiter gossip broadcasts merged",
	})
)
