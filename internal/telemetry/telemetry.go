package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Telemetry holds the installed providers. A nil *Telemetry is valid and
// does nothing.
type Telemetry struct {
	config    *Config
	shutdowns []shutdownFunc
	degraded  error
}

type shutdownFunc struct {
	name string
	fn   func(context.Context) error
}

// installer builds one provider, installs it globally and returns its
// shutdown.
type installer struct {
	name    string
	install func(context.Context, *Config, *resource.Resource) (func(context.Context) error, error)
}

var installers = []installer{
	{name: "traces", install: installTracing},
	{name: "metrics", install: installMetrics},
}

// New installs the configured providers. A provider whose exporter cannot be
// built is skipped, leaving the global no-op in place; the reasons are
// reported by Degraded and never fail startup.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)
	var failures []error
	for _, in := range installers {
		shutdown, err := in.install(ctx, cfg, res)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", in.name, err))
			continue
		}
		t.shutdowns = append(t.shutdowns, shutdownFunc{name: in.name, fn: shutdown})
	}
	t.degraded = errors.Join(failures...)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// Enabled reports whether telemetry was requested.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.config != nil && t.config.Enabled
}

// Degraded returns why a requested provider is not exporting, or nil.
func (t *Telemetry) Degraded() error {
	if t == nil {
		return nil
	}
	return t.degraded
}

// Shutdown flushes pending spans and metrics. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || len(t.shutdowns) == 0 {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	for _, s := range t.shutdowns {
		if err := s.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
