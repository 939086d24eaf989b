package embeddings

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// Unavailable is the provider used when no embedding backend could be
// initialized. Every call fails with ragerr.ErrEmbeddingUnavailable.
type Unavailable struct {
	dimension int
	reason    string
}

// NewUnavailable returns a provider that reports reason on every call.
func NewUnavailable(dimension int, reason string) *Unavailable {
	return &Unavailable{dimension: dimension, reason: reason}
}

func (u *Unavailable) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, u.err()
}

func (u *Unavailable) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, u.err()
}

func (u *Unavailable) Dimension() int { return u.dimension }

func (u *Unavailable) Close() error { return nil }

// Reason explains why the backend is unavailable.
func (u *Unavailable) Reason() string { return u.reason }

func (u *Unavailable) err() error {
	return fmt.Errorf("%w: %s", ragerr.ErrEmbeddingUnavailable, u.reason)
}
