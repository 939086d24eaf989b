package embeddings

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/embeddings"

// Metrics instruments backend calls made through the guard.
type Metrics struct {
	latency  metric.Float64Histogram
	texts    metric.Int64Counter
	failures metric.Int64Counter
}

// defaultMetrics is shared by every guard in the process.
var defaultMetrics = sync.OnceValue(func() *Metrics {
	return NewMetrics(otel.Meter(instrumentationName), nil)
})

// NewMetrics registers the embedding instruments on meter. Instruments that
// fail to register are logged to logger and skipped.
func NewMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	var m Metrics
	var errs []error
	var err error

	m.latency, err = meter.Float64Histogram("ragd.embedding.generation_duration_seconds",
		metric.WithDescription("Embedding backend call latency by model and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10))
	errs = append(errs, err)

	m.texts, err = meter.Int64Counter("ragd.embedding.texts_total",
		metric.WithDescription("Texts sent to the embedding backend by model and operation"),
		metric.WithUnit("{text}"))
	errs = append(errs, err)

	m.failures, err = meter.Int64Counter("ragd.embedding.errors_total",
		metric.WithDescription("Failed embedding backend calls by model and reason"),
		metric.WithUnit("{call}"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		logger.Warn("registering embedding instruments", zap.Error(err))
	}
	return &m
}

// RecordGeneration records one backend call that embedded texts.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, elapsed time.Duration, texts int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.latency != nil {
		m.latency.Record(ctx, elapsed.Seconds(), attrs)
	}
	if m.texts != nil && texts > 0 {
		m.texts.Add(ctx, int64(texts), attrs)
	}
	if m.failures != nil && err != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("reason", failureReason(err)),
		))
	}
}

// failureReason separates vectors the guard rejected from backend failures.
func failureReason(err error) string {
	switch {
	case errors.Is(err, errBadVectors):
		return "bad_vectors"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case ragerr.Is(err, ragerr.KindValidation):
		return "validation"
	default:
		return "backend"
	}
}
