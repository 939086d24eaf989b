package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// fakeProvider returns vectors of a fixed dimension and fails any text
// containing "fail".
type fakeProvider struct {
	dim   int
	calls atomic.Int32
	short bool
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if strings.Contains(t, "fail") {
			return nil, errors.New("backend rejected input")
		}
		out = append(out, f.vector(t))
	}
	return out, nil
}

func (f *fakeProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if strings.Contains(text, "fail") {
		return nil, errors.New("backend rejected input")
	}
	return f.vector(text), nil
}

func (f *fakeProvider) vector(text string) []float32 {
	n := f.dim
	if f.short {
		n--
	}
	v := make([]float32, n)
	v[0] = float32(len(text))
	return v
}

func (f *fakeProvider) Dimension() int { return f.dim }

func (f *fakeProvider) Close() error { return nil }

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ProviderConfig
		wantKind ragerr.Kind
	}{
		{
			name: "tei with valid config",
			cfg: ProviderConfig{
				Provider:  "tei",
				BaseURL:   "http://localhost:8080",
				Model:     "BAAI/bge-small-en-v1.5",
				Dimension: 384,
			},
		},
		{
			name:     "tei without base URL",
			cfg:      ProviderConfig{Provider: "tei", Model: "BAAI/bge-small-en-v1.5"},
			wantKind: ragerr.KindConfiguration,
		},
		{
			name: "tei dimension mismatch",
			cfg: ProviderConfig{
				Provider:  "tei",
				BaseURL:   "http://localhost:8080",
				Model:     "BAAI/bge-base-en-v1.5",
				Dimension: 384,
			},
			wantKind: ragerr.KindConfiguration,
		},
		{
			name:     "openai without model",
			cfg:      ProviderConfig{Provider: "openai"},
			wantKind: ragerr.KindConfiguration,
		},
		{
			name:     "openai unknown model without dimension",
			cfg:      ProviderConfig{Provider: "openai", Model: "custom-embedder"},
			wantKind: ragerr.KindConfiguration,
		},
		{
			name: "openai known model",
			cfg: ProviderConfig{
				Provider:  "openai",
				Model:     "text-embedding-3-small",
				APIKey:    "sk-test",
				Dimension: 1536,
			},
		},
		{
			name:     "unknown provider",
			cfg:      ProviderConfig{Provider: "unknown"},
			wantKind: ragerr.KindConfiguration,
		},
		{
			name: "none",
			cfg:  ProviderConfig{Provider: "none", Dimension: 384},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantKind != ragerr.KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, ragerr.KindOf(err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, tt.cfg.Dimension, p.Dimension())
			assert.NoError(t, p.Close())
		})
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("configuration errors are not downgraded", func(t *testing.T) {
		_, err := Resolve(ctx, ProviderConfig{Provider: "bogus"}, false, nil)
		require.Error(t, err)
		assert.True(t, ragerr.Is(err, ragerr.KindConfiguration))
	})

	t.Run("disabled provider resolves to unavailable", func(t *testing.T) {
		p, err := Resolve(ctx, ProviderConfig{Provider: "none", Dimension: 384}, true, nil)
		require.NoError(t, err)
		_, err = p.EmbedQuery(ctx, "anything")
		assert.ErrorIs(t, err, ragerr.ErrEmbeddingUnavailable)
	})
}

func TestUnavailable(t *testing.T) {
	u := NewUnavailable(384, "model download failed")

	_, err := u.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ragerr.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, ragerr.ErrDependencyUnavailable)
	assert.Contains(t, err.Error(), "model download failed")

	_, err = u.EmbedQuery(context.Background(), "a")
	assert.ErrorIs(t, err, ragerr.ErrEmbeddingUnavailable)

	assert.Equal(t, 384, u.Dimension())
	assert.Equal(t, "model download failed", u.Reason())
}

func TestGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("passes through valid vectors", func(t *testing.T) {
		g := newGuard(&fakeProvider{dim: 4}, "fake")
		vecs, err := g.EmbedDocuments(ctx, []string{"a", "bb"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)
		assert.Len(t, vecs[1], 4)
	})

	t.Run("rejects wrong dimension", func(t *testing.T) {
		g := newGuard(&fakeProvider{dim: 4, short: true}, "fake")
		_, err := g.EmbedQuery(ctx, "hello")
		assert.ErrorIs(t, err, ragerr.ErrEmbeddingUnavailable)
	})

	t.Run("classifies backend errors", func(t *testing.T) {
		g := newGuard(&fakeProvider{dim: 4}, "fake")
		_, err := g.EmbedQuery(ctx, "please fail")
		assert.ErrorIs(t, err, ragerr.ErrEmbeddingUnavailable)
	})

	t.Run("empty input", func(t *testing.T) {
		g := newGuard(&fakeProvider{dim: 4}, "fake")
		vecs, err := g.EmbedDocuments(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vecs)

		_, err = g.EmbedQuery(ctx, "")
		assert.ErrorIs(t, err, ragerr.ErrValidation)
	})

	t.Run("keeps context errors matchable", func(t *testing.T) {
		err := classify(context.Canceled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, ragerr.ErrEmbeddingUnavailable)
	})
}

func TestTEIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)

		var req struct {
			Inputs   json.RawMessage `json:"inputs"`
			Truncate bool            `json:"truncate"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		n := 1
		var many []string
		if json.Unmarshal(req.Inputs, &many) == nil {
			n = len(many)
		}
		out := make([][]float32, n)
		for i := range out {
			out[i] = make([]float32, 384)
			out[i][0] = float32(i + 1)
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	p, err := NewProvider(ProviderConfig{
		Provider:  "tei",
		BaseURL:   srv.URL + "/",
		Model:     "BAAI/bge-small-en-v1.5",
		Dimension: 384,
	})
	require.NoError(t, err)
	defer p.Close()

	vecs, err := p.EmbedDocuments(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(3), vecs[2][0])

	vec, err := p.EmbedQuery(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
}

func TestTEIProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewProvider(ProviderConfig{
		Provider:  "tei",
		BaseURL:   srv.URL,
		Model:     "BAAI/bge-small-en-v1.5",
		Dimension: 384,
	})
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "query")
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "503")
}

func TestMetrics_RecordGeneration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewMetrics(mp.Meter(instrumentationName), nil)

	ctx := context.Background()
	m.RecordGeneration(ctx, "fake", "batch_embed", 0, 16, nil)
	m.RecordGeneration(ctx, "fake", "embed", 0, 1, fmt.Errorf("%w: short", errBadVectors))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	reasons := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				sums[md.Name] += dp.Value
				if r, ok := dp.Attributes.Value("reason"); ok {
					reasons[r.AsString()] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(17), sums["ragd.embedding.texts_total"])
	assert.Equal(t, int64(1), sums["ragd.embedding.errors_total"])
	assert.Equal(t, map[string]int64{"bad_vectors": 1}, reasons)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "bad_vectors", failureReason(fmt.Errorf("%w: %w", ragerr.ErrEmbeddingUnavailable, errBadVectors)))
	assert.Equal(t, "timeout", failureReason(context.DeadlineExceeded))
	assert.Equal(t, "validation", failureReason(ragerr.ErrValidation))
	assert.Equal(t, "backend", failureReason(errors.New("connection refused")))
}
