package http

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/ragd/internal/http"

// HTTPMetrics instruments the API. Routes are labelled by their template so
// document ids never become label values.
type HTTPMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	requests metric.Int64Counter
	latency  metric.Float64Histogram
	bodySize metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics registers the API instruments on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{meter: otel.Meter(httpInstrumentationName), logger: logger}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	warn := func(name string, err error) {
		if err != nil {
			m.logger.Warn("registering http instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	var err error
	m.requests, err = m.meter.Int64Counter("ragd.http.requests_total",
		metric.WithDescription("API requests by method, route and status"),
		metric.WithUnit("{request}"))
	warn("requests_total", err)

	m.latency, err = m.meter.Float64Histogram("ragd.http.request_duration_seconds",
		metric.WithDescription("API request latency by method, route and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60))
	warn("request_duration_seconds", err)

	// Upload and ingest bodies dominate; the buckets follow MaxUploadBytes
	// rather than typical JSON sizes.
	m.bodySize, err = m.meter.Int64Histogram("ragd.http.request_size_bytes",
		metric.WithDescription("Declared request body size by route"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1<<10, 16<<10, 128<<10, 1<<20, 8<<20, 32<<20))
	warn("request_size_bytes", err)

	m.inFlight, err = m.meter.Int64UpDownCounter("ragd.http.active_requests",
		metric.WithDescription("API requests in progress"),
		metric.WithUnit("{request}"))
	warn("active_requests", err)
}

// MetricsMiddleware records each request after the error handler has written
// the response, so failed requests are labelled with their real status.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()

			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			if err := next(c); err != nil {
				c.Error(err)
			}

			route := attribute.String("route", normalizePath(c.Path()))
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				route,
				attribute.String("status", strconv.Itoa(c.Response().Status)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if n := c.Request().ContentLength; n > 0 && m.bodySize != nil {
				m.bodySize.Record(ctx, n, metric.WithAttributes(route))
			}
			return nil
		}
	}
}

// normalizePath maps the matched route template to a label; unmatched
// requests share one.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
