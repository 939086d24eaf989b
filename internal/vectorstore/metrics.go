package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: backend (qdrant, chromem), operation, status (ok, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// OperationDuration tracks store operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// FragmentsSkipped counts fragments rejected for a wrong vector dimension.
	FragmentsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "fragments_skipped_total",
			Help:      "Fragments rejected before persistence because of a vector dimension mismatch",
		},
		[]string{"backend"},
	)
)

// observe records one operation. Use as defer observe(backend, op, time.Now(), &err).
func observe(backend, operation string, start time.Time, err *error) {
	status := "ok"
	if err != nil && *err != nil {
		status = "error"
	}
	OperationsTotal.WithLabelValues(backend, operation, status).Inc()
	OperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}
