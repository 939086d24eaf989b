// Package embeddings turns text into fixed-dimension vectors.
//
// A backend is chosen once at startup by NewProvider. When the configured
// backend cannot be reached and is not marked required, Resolve degrades to
// Unavailable, which fails every call with ragerr.ErrEmbeddingUnavailable so
// ingestion and retrieval report the outage instead of crashing the process.
package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"go.uber.org/zap"
)

// Provider generates embeddings for documents and queries.
type Provider interface {
	// EmbedDocuments returns one vector per input text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery returns the vector for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension is the length of every vector this provider returns.
	Dimension() int

	// Close releases backend resources.
	Close() error
}

// ProviderConfig selects and configures an embedding backend.
type ProviderConfig struct {
	// Provider is one of fastembed, openai, tei or none.
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	CacheDir string

	// Dimension is the vector length the store expects. Backends whose
	// model dimension differs are rejected.
	Dimension int
	Timeout   time.Duration
}

// NewProvider creates the configured backend wrapped with dimension checks
// and metrics.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch strings.ToLower(cfg.Provider) {
	case "fastembed", "":
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "openai":
		p, err = NewRemoteProvider(RemoteConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
		})
	case "tei":
		p, err = NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	case "none":
		return NewUnavailable(cfg.Dimension, "embedding provider disabled"), nil
	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q (supported: fastembed, openai, tei, none)", ragerr.ErrConfiguration, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Dimension > 0 && p.Dimension() != cfg.Dimension {
		_ = p.Close()
		return nil, fmt.Errorf("%w: model %q produces %d-dimensional vectors, store expects %d",
			ragerr.ErrConfiguration, cfg.Model, p.Dimension(), cfg.Dimension)
	}

	return newGuard(p, cfg.Model), nil
}

// Resolve creates the configured backend. If it cannot be created and
// required is false, it logs the reason and returns Unavailable so the rest
// of the service can start. Configuration errors are never downgraded.
func Resolve(ctx context.Context, cfg ProviderConfig, required bool, logger *logging.Logger) (Provider, error) {
	p, err := NewProvider(cfg)
	if err == nil {
		return p, nil
	}
	if required || ragerr.Is(err, ragerr.KindConfiguration) {
		return nil, err
	}

	if logger != nil {
		logger.Warn(ctx, "embedding backend unavailable, continuing degraded",
			zap.String("provider", cfg.Provider),
			zap.String("model", cfg.Model),
			zap.Error(err))
	}
	return NewUnavailable(cfg.Dimension, err.Error()), nil
}
