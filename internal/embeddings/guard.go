package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// guard enforces the Provider contract on top of a raw backend: errors are
// classified as dependency failures and vectors of the wrong length are
// rejected before they reach the store.
type guard struct {
	inner   Provider
	model   string
	metrics *Metrics
}

func newGuard(p Provider, model string) *guard {
	return &guard{inner: p, model: model, metrics: defaultMetrics()}
}

// errBadVectors marks output that violates the vector count or dimension.
var errBadVectors = errors.New("backend returned malformed vectors")

func (g *guard) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ragerr.ErrValidation, i)
		}
	}

	start := time.Now()
	vecs, err := g.inner.EmbedDocuments(ctx, texts)
	if err == nil {
		err = g.check(len(texts), vecs...)
	}
	g.metrics.RecordGeneration(ctx, g.model, "batch_embed", time.Since(start), len(texts), err)
	if err != nil {
		return nil, classify(err)
	}
	return vecs, nil
}

func (g *guard) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query text is empty", ragerr.ErrValidation)
	}

	start := time.Now()
	vec, err := g.inner.EmbedQuery(ctx, text)
	if err == nil {
		err = g.check(1, vec)
	}
	g.metrics.RecordGeneration(ctx, g.model, "embed", time.Since(start), 1, err)
	if err != nil {
		return nil, classify(err)
	}
	return vec, nil
}

func (g *guard) Dimension() int { return g.inner.Dimension() }

func (g *guard) Close() error { return g.inner.Close() }

func (g *guard) check(want int, vecs ...[]float32) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: %w: got %d vectors for %d texts", ragerr.ErrEmbeddingUnavailable, errBadVectors, len(vecs), want)
	}
	dim := g.inner.Dimension()
	for i, v := range vecs {
		if len(v) != dim {
			return fmt.Errorf("%w: %w: vector %d has dimension %d, expected %d", ragerr.ErrEmbeddingUnavailable, errBadVectors, i, len(v), dim)
		}
	}
	return nil
}

// classify leaves already-classified errors alone and marks everything else
// as an embedding outage. Context errors stay matchable through the wrap.
func classify(err error) error {
	if ragerr.KindOf(err) != ragerr.KindUnknown {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ragerr.ErrEmbeddingUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ragerr.ErrEmbeddingUnavailable, err)
}
