package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcomes recorded by the worker pool
const (
	outcomeCompleted   = "completed"
	outcomeRescheduled = "rescheduled"
	outcomeFailed      = "failed"
	outcomeAbandoned   = "abandoned"
	outcomeReleased    = "released"
)

var (
	// Jobs finished by a worker partitioned by type and outcome
	jobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_jobs_processed_total",
			Help: "Total number of jobs processed by the worker pool",
		},
		[]string{"type", "outcome"},
	)

	// Handler run time partitioned by type
	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_job_duration_seconds",
			Help:    "Job handler run time in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	// Jobs currently held by workers
	jobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_jobs_inflight",
			Help: "Number of jobs currently executing",
		},
	)

	// Scheduler refresh decisions partitioned by type and action
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_job_refresh_total",
			Help: "Idempotent refresh decisions",
		},
		[]string{"type", "action"},
	)

	estimateCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_estimate_cache_total",
			Help: "Reach estimate cache lookups partitioned by result",
		},
		[]string{"result"},
	)

	// Reach estimate calls issued by the polling loop
	estimatePollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_estimate_polls_total",
			Help: "Reach estimate API calls partitioned by readiness",
		},
		[]string{"ready"},
	)

	maintenanceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_maintenance_jobs_total",
			Help: "Jobs failed as stale or purged as completed by maintenance",
		},
		[]string{"action"},
	)
)
