package embeddings

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of texts sent to the backend per call.
const DefaultBatchSize = 16

// BatchResult is the outcome for one input text. Exactly one of Vector and
// Err is set.
type BatchResult struct {
	Vector []float32
	Err    error
}

// EmbedBatch embeds texts with at most parallelism backend calls in flight.
// Results are returned in input order. A failed batch is retried one text at
// a time so a single bad input fails only its own slot.
func EmbedBatch(ctx context.Context, p Provider, texts []string, parallelism int) []BatchResult {
	results := make([]BatchResult, len(texts))
	if len(texts) == 0 {
		return results
	}
	if parallelism < 1 {
		parallelism = 1
	}

	var g errgroup.Group
	g.SetLimit(parallelism)

	for start := 0; start < len(texts); start += DefaultBatchSize {
		end := min(start+DefaultBatchSize, len(texts))
		g.Go(func() error {
			embedRange(ctx, p, texts, results, start, end)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func embedRange(ctx context.Context, p Provider, texts []string, results []BatchResult, start, end int) {
	vecs, err := p.EmbedDocuments(ctx, texts[start:end])
	if err == nil && len(vecs) == end-start {
		for i, v := range vecs {
			results[start+i] = BatchResult{Vector: v}
		}
		return
	}
	if err == nil {
		err = fmt.Errorf("%w: backend returned %d vectors for %d texts", ragerr.ErrEmbeddingUnavailable, len(vecs), end-start)
	}
	if end-start == 1 {
		results[start] = BatchResult{Err: err}
		return
	}

	for i := start; i < end; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			results[i] = BatchResult{Err: classify(ctxErr)}
			continue
		}
		v, err := p.EmbedDocuments(ctx, texts[i:i+1])
		if err == nil && len(v) != 1 {
			err = fmt.Errorf("%w: backend returned %d vectors for 1 text", ragerr.ErrEmbeddingUnavailable, len(v))
		}
		if err != nil {
			results[i] = BatchResult{Err: err}
			continue
		}
		results[i] = BatchResult{Vector: v[0]}
	}
}
