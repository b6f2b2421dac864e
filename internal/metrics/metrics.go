package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "validation"

var (
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of validation jobs finished, labeled by terminal status.",
		},
		[]string{"status"},
	)

	JobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent running a validation job (seconds).",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	JobsSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_superseded_total",
			Help:      "Total number of jobs skipped because another run of the resource was already running.",
		},
	)

	QueueEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_enqueued_total",
			Help:      "Total number of jobs pushed to the queue.",
		},
		[]string{"queue"},
	)

	QueueDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dropped_total",
			Help:      "Total number of jobs dropped because their ttl elapsed before pickup.",
		},
		[]string{"queue"},
	)

	QueueFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_failed_total",
			Help:      "Total number of jobs whose handler returned an error.",
		},
		[]string{"queue"},
	)

	ReapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_total",
			Help:      "Total number of stale jobs moved to error by the reaper, labeled by the status they were stuck in.",
		},
		[]string{"status"},
	)

	Validations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Number of stored validation records by status, refreshed by the reaper.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		JobsTotal,
		JobDurationSeconds,
		JobsSupersededTotal,
		QueueEnqueuedTotal,
		QueueDroppedTotal,
		QueueFailedTotal,
		ReapedTotal,
		Validations,
	)
}
