package metrics

import (
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	QueueEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statements_queue_enqueued_total",
			Help: "Documents enqueued for processing",
		},
	)

	ReprocessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statements_queue_reprocess_total",
			Help: "Reprocess requests by outcome",
		},
		[]string{"outcome"},
	)

	BatchItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statements_batch_items_total",
			Help: "Batch action items by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	WorkerResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statements_worker_results_total",
			Help: "Worker write-backs by terminal status",
		},
		[]string{"status"},
	)

	ProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statements_processing_duration_seconds",
			Help:    "Extraction duration reported by the worker",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statements_queue_depth",
			Help: "Queue items by status as of the last dashboard refresh",
		},
		[]string{"status"},
	)

	ModelActivationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "statements_model_activations_total",
			Help: "Model version activations",
		},
	)

	FeedbackRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statements_feedback_recorded_total",
			Help: "Feedback recorded by category",
		},
		[]string{"category"},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statements_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by group",
		},
		[]string{"group"},
	)

	WorkerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statements_worker_messages_total",
			Help: "Result messages consumed by the worker bridge, by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		QueueEnqueuedTotal,
		ReprocessTotal,
		BatchItemsTotal,
		WorkerResultsTotal,
		ProcessingDuration,
		QueueDepth,
		ModelActivationsTotal,
		FeedbackRecordedTotal,
		RateLimitedTotal,
		WorkerMessagesTotal,
	)
}

// ObserveProcessingSeconds records a worker-reported duration.
func ObserveProcessingSeconds(value float64) {
	if value < 0 {
		value = 0
	}
	ProcessingDuration.Observe(value)
}

// SetQueueDepth publishes the latest per-status counts.
func SetQueueDepth(pending, processing, completed, failed int) {
	QueueDepth.WithLabelValues("pending").Set(float64(pending))
	QueueDepth.WithLabelValues("processing").Set(float64(processing))
	QueueDepth.WithLabelValues("completed").Set(float64(completed))
	QueueDepth.WithLabelValues("failed").Set(float64(failed))
}

// RegisterDBStats exports connection pool stats for db under the given name.
// Registering the same name twice is a no-op.
func RegisterDBStats(db *sql.DB, name string) error {
	err := registry.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
