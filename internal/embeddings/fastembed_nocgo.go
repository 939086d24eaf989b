//go:build !cgo

package embeddings

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// ErrFastEmbedNotAvailable is returned by binaries built without cgo.
var ErrFastEmbedNotAvailable = ragerr.New(ragerr.ErrDependencyUnavailable,
	"fastembed: not available (binary built without cgo, use the tei or openai provider)")

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is a stub for non-cgo builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider always fails without cgo. Unknown models are still
// reported as configuration errors.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	if cfg.Model != "" {
		if _, ok := modelDimension(cfg.Model); !ok {
			return nil, fmt.Errorf("%w: unsupported fastembed model %q", ragerr.ErrConfiguration, cfg.Model)
		}
	}
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) Dimension() int { return 0 }

func (p *FastEmbedProvider) Close() error { return nil }
