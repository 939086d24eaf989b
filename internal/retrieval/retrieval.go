// Package retrieval ranks stored fragments against a query vector.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// DefaultPoolSize is the number of candidates Exact reads per query.
const DefaultPoolSize = 100

// Result is a ranked list of hits, best first.
type Result struct {
	Hits []vectorstore.Hit `json:"hits"`
}

// Empty reports whether nothing was retrieved.
func (r Result) Empty() bool { return len(r.Hits) == 0 }

// Retriever returns the top hits of a tenant partition for a query vector.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID string, vector []float32, limit int) (Result, error)
}

// Exact reads a candidate pool and re-ranks it with exact cosine
// similarity. The ranking is independent of the backend's ANN index.
type Exact struct {
	store     vectorstore.Store
	dimension int
	poolSize  int
}

// NewExact returns an Exact retriever. poolSize <= 0 uses DefaultPoolSize.
func NewExact(store vectorstore.Store, dimension, poolSize int) *Exact {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &Exact{store: store, dimension: dimension, poolSize: poolSize}
}

// Retrieve scores up to poolSize candidates and returns the best limit.
// Candidates with equal scores keep the order the store returned them in.
func (e *Exact) Retrieve(ctx context.Context, tenantID string, vector []float32, limit int) (Result, error) {
	if err := checkVector(vector, e.dimension); err != nil {
		return Result{}, err
	}
	if limit <= 0 {
		return Result{Hits: []vectorstore.Hit{}}, nil
	}

	candidates, err := e.store.Scroll(ctx, tenantID, e.poolSize)
	if err != nil {
		return Result{}, err
	}

	hits := make([]vectorstore.Hit, len(candidates))
	for i, c := range candidates {
		hits[i] = vectorstore.Hit{
			Text:       c.Text,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Score:      Cosine(vector, c.Vector),
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return Result{Hits: hits}, nil
}

// Native delegates ranking to the store's own nearest-neighbour search.
type Native struct {
	store     vectorstore.Store
	dimension int
}

// NewNative returns a Native retriever.
func NewNative(store vectorstore.Store, dimension int) *Native {
	return &Native{store: store, dimension: dimension}
}

func (n *Native) Retrieve(ctx context.Context, tenantID string, vector []float32, limit int) (Result, error) {
	if err := checkVector(vector, n.dimension); err != nil {
		return Result{}, err
	}
	if limit <= 0 {
		return Result{Hits: []vectorstore.Hit{}}, nil
	}

	hits, err := n.store.Query(ctx, tenantID, vector, limit)
	if err != nil {
		return Result{}, err
	}
	return Result{Hits: hits}, nil
}

// New selects a retriever by mode: exact (default) or native.
func New(mode string, store vectorstore.Store, dimension, poolSize int) (Retriever, error) {
	switch mode {
	case "exact", "":
		return NewExact(store, dimension, poolSize), nil
	case "native":
		return NewNative(store, dimension), nil
	default:
		return nil, fmt.Errorf("%w: unsupported retrieval mode %q (supported: exact, native)", ragerr.ErrConfiguration, mode)
	}
}

func checkVector(vector []float32, dimension int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty", ragerr.ErrInvalidQueryVector)
	}
	if len(vector) != dimension {
		return fmt.Errorf("%w: dimension %d, expected %d", ragerr.ErrInvalidQueryVector, len(vector), dimension)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length or with zero norm score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
