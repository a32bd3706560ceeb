package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Review engine metrics.
var (
	ReviewsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_upserts_total",
			Help: "Reviews written, by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	RankingBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "review_ranking_build_seconds",
			Help:    "Time spent aggregating scores into a ranking",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"phase"},
	)

	RankingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_ranking_cache_lookups_total",
			Help: "Ranking cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	CutoffDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_cutoff_decisions_total",
			Help: "Applicant decisions written by cutoffs",
		},
		[]string{"phase", "action", "overridden"},
	)

	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_phase_transitions_total",
			Help: "Phase lifecycle transitions (finalize, unlock, revert)",
		},
		[]string{"phase", "transition"},
	)

	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_notifications_dispatched_total",
			Help: "Decision notifications handed to a dispatcher",
		},
		[]string{"dispatcher", "status"},
	)
)
