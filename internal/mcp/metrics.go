package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/mcp"

// latencyBuckets spans a cached search through a slow generated answer.
var latencyBuckets = []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics records tool calls. Instruments that fail to register stay nil and
// are skipped.
type Metrics struct {
	meter  metric.Meter
	logger *zap.Logger

	calls    metric.Int64Counter
	latency  metric.Float64Histogram
	failed   metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewMetrics registers the tool instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{meter: otel.Meter(instrumentationName), logger: logger}
	m.init()
	return m
}

func (m *Metrics) init() {
	var errs []error
	keep := func(err error) { errs = append(errs, err) }

	var err error
	m.calls, err = m.meter.Int64Counter("ragd.mcp.tool.invocations_total",
		metric.WithDescription("MCP tool calls"), metric.WithUnit("{call}"))
	keep(err)
	m.latency, err = m.meter.Float64Histogram("ragd.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call latency"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	keep(err)
	m.failed, err = m.meter.Int64Counter("ragd.mcp.tool.errors_total",
		metric.WithDescription("MCP tool calls that returned an error, by reason"), metric.WithUnit("{call}"))
	keep(err)
	m.inFlight, err = m.meter.Int64UpDownCounter("ragd.mcp.tool.active_requests",
		metric.WithDescription("MCP tool calls in progress"), metric.WithUnit("{call}"))
	keep(err)

	if err := errors.Join(errs...); err != nil {
		m.logger.Warn("registering mcp instruments", zap.Error(err))
	}
}

// Begin marks a call to tool as in flight. The returned func ends it and must
// be called exactly once with the call's outcome.
func (m *Metrics) Begin(ctx context.Context, tool string) func(error) {
	start := time.Now()
	m.IncrementActive(ctx, tool)
	return func(err error) {
		m.DecrementActive(ctx, tool)
		m.RecordInvocation(ctx, tool, time.Since(start), err)
	}
}

// RecordInvocation records one finished call.
func (m *Metrics) RecordInvocation(ctx context.Context, tool string, elapsed time.Duration, err error) {
	byTool := metric.WithAttributes(attribute.String("tool", tool))
	if m.calls != nil {
		m.calls.Add(ctx, 1, byTool)
	}
	if m.latency != nil {
		m.latency.Record(ctx, elapsed.Seconds(), byTool)
	}
	if err != nil && m.failed != nil {
		m.failed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("reason", categorizeError(err))))
	}
}

func (m *Metrics) IncrementActive(ctx context.Context, tool string) { m.active(ctx, tool, 1) }

func (m *Metrics) DecrementActive(ctx context.Context, tool string) { m.active(ctx, tool, -1) }

func (m *Metrics) active(ctx context.Context, tool string, delta int64) {
	if m.inFlight != nil {
		m.inFlight.Add(ctx, delta, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

// categorizeError maps an error to a low-cardinality reason label.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ragerr.ErrInvalidTenant):
		return "tenant_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	switch ragerr.KindOf(err) {
	case ragerr.KindValidation:
		return "validation_error"
	case ragerr.KindNotFound:
		return "not_found"
	case ragerr.KindUnauthenticated:
		return "auth_error"
	case ragerr.KindDependencyUnavailable:
		return "dependency_error"
	default:
		return "internal_error"
	}
}
