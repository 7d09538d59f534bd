package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		llmJobsClaimedTotal,
		llmJobsFinishedTotal,
		llmJobsActive,
		llmJobDuration,
		llmJobsOrphansRequeued,
		llmJobsQueueDepth,
		llmJobsEnqueuedTotal,
	)
}

// Outcomes recorded by the queue worker.
const (
	JobOutcomeDone          = "done"
	JobOutcomeRetried       = "retried"
	JobOutcomeFailed        = "failed"
	JobOutcomeDeliveryError = "delivery_error"
)

var (
	llmJobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_jobs_enqueued_total",
			Help:      "Jobs accepted into the LLM queue, by kind.",
		},
		[]string{"kind"},
	)

	llmJobsClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_jobs_claimed_total",
			Help:      "Jobs claimed by the queue worker, by kind.",
		},
		[]string{"kind"},
	)

	llmJobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_jobs_finished_total",
			Help:      "Job executions by kind and outcome (done, retried, failed, delivery_error).",
		},
		[]string{"kind", "outcome"},
	)

	llmJobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "llm_jobs_active",
			Help:      "Jobs currently executing in this process.",
		},
	)

	llmJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_job_duration_seconds",
			Help:      "Wall time of a single job execution.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 180},
		},
		[]string{"kind"},
	)

	llmJobsOrphansRequeued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_jobs_orphans_requeued_total",
			Help:      "Processing jobs returned to pending at worker start.",
		},
	)

	llmJobsQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "llm_jobs_queue_depth",
			Help:      "Jobs in the store by status.",
		},
		[]string{"status"},
	)
)

func IncJobEnqueued(kind string) { llmJobsEnqueuedTotal.WithLabelValues(norm(kind)).Inc() }

func IncJobClaimed(kind string) { llmJobsClaimedTotal.WithLabelValues(norm(kind)).Inc() }

func ObserveJobFinished(kind, outcome string, d time.Duration) {
	llmJobsFinishedTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
	llmJobDuration.WithLabelValues(norm(kind)).Observe(d.Seconds())
}

func SetJobsActive(n int) { llmJobsActive.Set(float64(n)) }

func AddOrphansRequeued(n int) { llmJobsOrphansRequeued.Add(float64(n)) }

func SetQueueDepth(counts map[string]int) {
	for status, n := range counts {
		llmJobsQueueDepth.WithLabelValues(norm(status)).Set(float64(n))
	}
}
