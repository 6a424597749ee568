package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine operation metrics
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildcore_operations_total",
			Help: "Total number of engine operations",
		},
		[]string{"operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buildcore_operation_duration_seconds",
			Help:    "Time taken by engine operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Synchronizer metrics
	SaveFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildcore_save_flushes_total",
			Help: "Total number of debounced save flushes",
		},
		[]string{"target", "status"},
	)

	SaveFlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buildcore_save_flush_duration_seconds",
			Help:    "Time taken to flush state to a persistence target",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"target"},
	)

	SaveQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buildcore_save_queue_depth",
			Help: "Pending writes queued for the remote store",
		},
		[]string{"target"},
	)

	MigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildcore_snapshot_migrations_total",
			Help: "Total number of snapshot schema migrations applied on load",
		},
		[]string{"from_version", "to_version"},
	)
)

// Recorder reports engine operation outcomes to the package metrics.
type Recorder struct{}

// NewRecorder returns a Prometheus-backed operation recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Observe records one operation outcome.
func (Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "ok"
	if !success {
		status = "error"
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
