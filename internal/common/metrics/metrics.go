// internal/common/metrics/metrics.go
package metrics

import (
	"context"
	"time"

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

	BranchFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deal_context_branch_fetch_total",
			Help: "Branch fetches by branch kind and outcome",
		},
		[]string{"branch", "status"},
	)

	BranchFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deal_context_branch_fetch_duration_seconds",
			Help:    "Duration of individual branch fetches",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"branch"},
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "deal_context_aggregation_duration_seconds",
			Help: "Wall time to build one deal context",
		},
	)

	AssociationEntriesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deal_context_association_entries_dropped_total",
			Help: "Malformed association entries skipped while resolving a deal",
		},
		[]string{"type"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deal_context_cache_requests_total",
			Help: "Document cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
)

// AggregationObserver receives one call per finished aggregation. The
// OpenTelemetry meter in the observability package implements it.
type AggregationObserver interface {
	RecordAggregation(ctx context.Context, duration time.Duration, failedBranches int)
}

// Recorder feeds the Prometheus collectors above and forwards aggregation
// totals to an optional observer.
type Recorder struct {
	observer AggregationObserver
}

func NewRecorder(observer AggregationObserver) *Recorder {
	return &Recorder{observer: observer}
}

func (r *Recorder) BranchFetched(branch, status string, d time.Duration) {
	BranchFetches.WithLabelValues(branch, status).Inc()
	BranchFetchDuration.WithLabelValues(branch).Observe(d.Seconds())
}

func (r *Recorder) AssociationsDropped(entityType string, n int) {
	AssociationEntriesDropped.WithLabelValues(entityType).Add(float64(n))
}

func (r *Recorder) AggregationFinished(ctx context.Context, d time.Duration, failedBranches int) {
	AggregationDuration.Observe(d.Seconds())
	if r.observer != nil {
		r.observer.RecordAggregation(ctx, d, failedBranches)
	}
}
