package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/segment"
	"github.com/fyrsmithlabs/ragd/internal/synthesis"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"github.com/stretchr/testify/require"
)

const testDim = 4

// hashProvider embeds text deterministically and fails any text
// containing "FAIL".
type hashProvider struct{}

func (hashProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "FAIL") {
			return nil, errors.New("backend rejected input")
		}
		out[i] = hashVector(t)
	}
	return out, nil
}

func (hashProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return hashVector(text), nil
}

func (hashProvider) Dimension() int { return testDim }

func (hashProvider) Close() error { return nil }

func hashVector(text string) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum32()
	v := make([]float32, testDim)
	for i := range v {
		v[i] = float32((sum>>(8*i))&0xff) + 1
	}
	return v
}

type stubGenerator struct {
	out   string
	err   error
	calls int
}

func (g *stubGenerator) Generate(context.Context, string) (string, error) {
	g.calls++
	return g.out, g.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// block pads word to exactly n characters without whitespace so a
// segmenter with size n and no overlap yields one block per fragment.
func block(word string, n int) string {
	return word + strings.Repeat("x", n-len(word))
}

type harness struct {
	store     *vectorstore.ChromemStore
	ingestor  *Ingestor
	responder *Responder
	gen       *stubGenerator
	publisher *recordingPublisher
	logger    *logging.TestLogger
}

func newHarness(t *testing.T, provider embeddings.Provider) *harness {
	t.Helper()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Collection: "document_chunks", Dimension: testDim}, nil)
	require.NoError(t, err)

	seg, err := segment.New(50, 0)
	require.NoError(t, err)

	h := &harness{
		store:     store,
		gen:       &stubGenerator{out: "generated answer [Fragment 1]"},
		publisher: &recordingPublisher{},
		logger:    logging.NewTestLogger(),
	}

	synth := synthesis.New(h.gen, h.logger.Logger)
	h.ingestor = NewIngestor(DefaultIngestConfig(), seg, provider, store,
		WithPublisher(h.publisher),
		WithSummarizer(synth),
		WithLogger(h.logger.Logger),
	)
	h.responder = NewResponder(DefaultQueryConfig(), provider,
		retrieval.NewExact(store, testDim, retrieval.DefaultPoolSize), synth, h.logger.Logger)
	return h
}
