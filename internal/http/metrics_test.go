package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.DELETE("/api/v1/documents/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.POST("/api/v1/ingest", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "text too short")
	})

	for _, target := range []string{
		"/api/v1/documents/3f2c8f0e-8d7a-4c55-9f55-2a0c1d7b9e10",
		"/api/v1/documents/0b7c9a1e-5f0d-4f4e-8a43-6f2f1c9d2b10",
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, target, nil))
	}
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(`{"text":"short"}`)))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	routes := map[string]int64{}
	statuses := map[string]int64{}
	var foundDuration, foundSize bool
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch md.Name {
			case "ragd.http.requests_total":
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					route, _ := dp.Attributes.Value(attribute.Key("route"))
					routes[route.AsString()] += dp.Value
					status, _ := dp.Attributes.Value(attribute.Key("status"))
					statuses[status.AsString()] += dp.Value
				}
			case "ragd.http.request_duration_seconds":
				foundDuration = true
			case "ragd.http.request_size_bytes":
				foundSize = true
			}
		}
	}

	assert.Equal(t, map[string]int64{"/api/v1/documents/:id": 2, "/health": 1, "/api/v1/ingest": 1}, routes)
	assert.Equal(t, map[string]int64{"200": 3, "422": 1}, statuses)
	assert.True(t, foundDuration, "duration histogram not found")
	assert.True(t, foundSize, "request size histogram not found")
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unmatched"},
		{"/health", "/health"},
		{"/api/v1/documents/:id", "/api/v1/documents/:id"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizePath(tt.input), "normalizePath(%q)", tt.input)
	}
}
