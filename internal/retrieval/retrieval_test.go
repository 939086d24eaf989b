package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scrollStore serves fixed candidates and counts backend calls.
type scrollStore struct {
	vectorstore.Store
	candidates []vectorstore.Candidate
	hits       []vectorstore.Hit
	err        error
	calls      int
	lastLimit  int
}

func (s *scrollStore) Scroll(_ context.Context, _ string, limit int) ([]vectorstore.Candidate, error) {
	s.calls++
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates[:min(limit, len(s.candidates))], nil
}

func (s *scrollStore) Query(_ context.Context, _ string, _ []float32, limit int) ([]vectorstore.Hit, error) {
	s.calls++
	s.lastLimit = limit
	return s.hits, s.err
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-6)
		})
	}
}

func TestExact_Ranking(t *testing.T) {
	store := &scrollStore{candidates: []vectorstore.Candidate{
		{Text: "orthogonal", Vector: []float32{0, 1}},
		{Text: "close", Vector: []float32{0.9, 0.1}},
		{Text: "exact", Vector: []float32{1, 0}},
		{Text: "tie-first", Vector: []float32{0.5, 0.5}},
		{Text: "tie-second", Vector: []float32{0.5, 0.5}},
		{Text: "bad-dimension", Vector: []float32{1, 0, 0}},
	}}

	res, err := NewExact(store, 2, 0).Retrieve(context.Background(), "acme", []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, res.Hits, 4)

	texts := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		texts[i] = h.Text
	}
	assert.Equal(t, []string{"exact", "close", "tie-first", "tie-second"}, texts)

	for i := 1; i < len(res.Hits); i++ {
		assert.GreaterOrEqual(t, res.Hits[i-1].Score, res.Hits[i].Score)
	}
	assert.Equal(t, DefaultPoolSize, store.lastLimit)
}

func TestExact_ReturnsTopOfPool(t *testing.T) {
	// A brute-force ranking over the same pool must agree with Retrieve.
	store := &scrollStore{}
	query := []float32{0.3, 0.7, 0.1}
	for i := range 30 {
		store.candidates = append(store.candidates, vectorstore.Candidate{
			DocumentID: uuid.NewString(),
			ChunkIndex: i,
			Vector:     []float32{float32(i % 7), float32(i % 5), float32(i % 3)},
		})
	}

	res, err := NewExact(store, 3, 30).Retrieve(context.Background(), "acme", query, 5)
	require.NoError(t, err)
	require.Len(t, res.Hits, 5)

	lowestReturned := res.Hits[4].Score
	returned := map[int]bool{}
	for _, h := range res.Hits {
		returned[h.ChunkIndex] = true
	}
	for _, c := range store.candidates {
		if !returned[c.ChunkIndex] {
			assert.LessOrEqual(t, Cosine(query, c.Vector), lowestReturned)
		}
	}
}

func TestExact_InvalidVector(t *testing.T) {
	store := &scrollStore{}
	r := NewExact(store, 3, 10)

	_, err := r.Retrieve(context.Background(), "acme", nil, 5)
	assert.ErrorIs(t, err, ragerr.ErrInvalidQueryVector)

	_, err = r.Retrieve(context.Background(), "acme", []float32{1, 2}, 5)
	assert.ErrorIs(t, err, ragerr.ErrInvalidQueryVector)
	assert.True(t, ragerr.Is(err, ragerr.KindValidation))

	assert.Zero(t, store.calls, "store must not be touched for invalid vectors")
}

func TestExact_EmptyPartition(t *testing.T) {
	res, err := NewExact(&scrollStore{}, 2, 10).Retrieve(context.Background(), "acme", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestExact_StoreError(t *testing.T) {
	store := &scrollStore{err: errors.New("boom")}
	_, err := NewExact(store, 2, 10).Retrieve(context.Background(), "acme", []float32{1, 0}, 5)
	assert.Error(t, err)
}

func TestNative(t *testing.T) {
	store := &scrollStore{hits: []vectorstore.Hit{{Text: "a", Score: 0.8}}}
	res, err := NewNative(store, 2).Retrieve(context.Background(), "acme", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, store.hits, res.Hits)
	assert.Equal(t, 3, store.lastLimit)
}

func TestIsolationAgainstRealStore(t *testing.T) {
	ctx := context.Background()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Collection: "document_chunks", Dimension: 2}, nil)
	require.NoError(t, err)

	_, err = store.Upsert(ctx, "tenant-a", uuid.NewString(), []vectorstore.Fragment{
		{ChunkIndex: 0, Text: "secret of a", Vector: []float32{1, 0}},
	})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "tenant-b", uuid.NewString(), []vectorstore.Fragment{
		{ChunkIndex: 0, Text: "public of b", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)

	for _, r := range []Retriever{NewExact(store, 2, 10), NewNative(store, 2)} {
		res, err := r.Retrieve(ctx, "tenant-b", []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, res.Hits, 1)
		assert.Equal(t, "public of b", res.Hits[0].Text)
	}
}

func TestNew(t *testing.T) {
	_, err := New("exact", nil, 2, 0)
	assert.NoError(t, err)
	_, err = New("native", nil, 2, 0)
	assert.NoError(t, err)
	_, err = New("fuzzy", nil, 2, 0)
	assert.ErrorIs(t, err, ragerr.ErrConfiguration)
}
