// Package telemetry wires OpenTelemetry tracing and metrics for ragd.
//
// Telemetry is disabled by default. When disabled or when exporter setup
// fails, Tracer and Meter fall back to the global no-op providers so callers
// never need to check.
package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled         bool
	Endpoint        string
	Protocol        string // grpc or http/protobuf
	Insecure        bool
	ServiceName     string
	ServiceVersion  string
	SampleRate      float64
	ExportInterval  time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns disabled telemetry pointed at a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		Endpoint:        "localhost:4317",
		Protocol:        "grpc",
		Insecure:        true,
		ServiceName:     "ragd",
		ServiceVersion:  "dev",
		SampleRate:      1.0,
		ExportInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required when telemetry is enabled")
	}
	if c.Protocol != "grpc" && c.Protocol != "http/protobuf" {
		return fmt.Errorf("protocol must be grpc or http/protobuf, got %q", c.Protocol)
	}
	if c.Insecure && !isLocalEndpoint(c.Endpoint) {
		return fmt.Errorf("insecure connections are only allowed to local endpoints, got %q", c.Endpoint)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate must be between 0 and 1, got %f", c.SampleRate)
	}
	if c.ExportInterval <= 0 {
		return fmt.Errorf("export interval must be positive")
	}
	return nil
}

// isLocalEndpoint reports whether endpoint (host:port, optional scheme)
// points at the local machine.
func isLocalEndpoint(endpoint string) bool {
	host := stripScheme(endpoint)
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx != -1 {
			host = host[1:idx]
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.LastIndex(host, ":")]
	}
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}

// stripScheme removes http:// or https://; OTLP HTTP exporters want host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
