package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "formfill"

var (
	JobsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of jobs accepted by the coordinator.",
		},
	)

	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that reached a terminal state, labeled by status.",
		},
		[]string{"status"},
	)

	JobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from lock acquisition to terminal state (seconds).",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"status"},
	)

	ResponsesSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_submitted_total",
			Help:      "Total number of responses committed to form backends.",
		},
	)

	FieldErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_errors_total",
			Help:      "Fields left unanswered, labeled by field type and reason (skipped|error).",
		},
		[]string{"type", "reason"},
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Assisted generation calls, labeled by outcome (success|fallback).",
		},
		[]string{"outcome"},
	)

	GenerationLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Latency of assisted generation calls including pacing (seconds).",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	LockWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the job lock, labeled by outcome (acquired|timeout).",
			Buckets:   []float64{0.01, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"outcome"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected or delayed by a rate limit bucket.",
		},
		[]string{"scope", "subject"},
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Total number of completion callbacks, labeled by outcome.",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		JobsStartedTotal,
		JobsCompletedTotal,
		JobDurationSeconds,
		ResponsesSubmittedTotal,
		FieldErrorsTotal,
		GenerationRequestsTotal,
		GenerationLatencySeconds,
		LockWaitSeconds,
		RateLimitHitsTotal,
		WebhookDeliveriesTotal,
	)
}
