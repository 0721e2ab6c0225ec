// internal/common/metrics/metrics.go
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

var (
	DealsNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deals_normalized_total",
			Help: "Total number of raw deals normalized, by source",
		},
		[]string{"source"},
	)

	DealsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deals_rejected_total",
			Help: "Total number of raw deals rejected during normalization, by reason",
		},
		[]string{"reason"},
	)

	DealDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deal_duplicates_total",
			Help: "Total number of duplicate pairs detected, by match type",
		},
		[]string{"match_type"},
	)

	DealAggregationRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deal_aggregation_removed_total",
			Help: "Total number of deals dropped by aggregation dedup and truncation",
		},
	)
)
