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

	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_validations_total",
			Help: "Validations run, by outcome",
		},
		[]string{"outcome"}, // valid, corrected, invalid
	)

	CorrectionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_corrections_applied_total",
			Help: "Auto-applied corrections by field",
		},
		[]string{"field"},
	)

	RecoveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_recovery_attempts_total",
			Help: "Retry attempts made by failure recovery",
		},
		[]string{"kind", "success"},
	)

	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_escalations_total",
			Help: "Failures escalated to a human operator",
		},
		[]string{"reason"},
	)

	SuggestionsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_suggestions_generated_total",
			Help: "Suggestions returned, by suggestion type",
		},
		[]string{"type"},
	)

	CatalogCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_catalog_cache_lookups_total",
			Help: "Catalog cache lookups, by result",
		},
		[]string{"entity", "result"}, // hit, miss
	)

	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "intake_extraction_duration_seconds",
			Help:    "Latency of model extraction calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)
