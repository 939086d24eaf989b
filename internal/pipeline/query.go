package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/synthesis"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"go.uber.org/zap"
)

// Responder answers questions from a tenant partition.
type Responder struct {
	cfg       QueryConfig
	provider  embeddings.Provider
	retriever retrieval.Retriever
	synth     *synthesis.Synthesizer
	logger    *logging.Logger
}

// NewResponder returns a Responder.
func NewResponder(cfg QueryConfig, provider embeddings.Provider, retriever retrieval.Retriever, synth *synthesis.Synthesizer, logger *logging.Logger) *Responder {
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = DefaultQueryConfig().DefaultLimit
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if synth == nil {
		synth = synthesis.New(nil, logger)
	}
	return &Responder{cfg: cfg, provider: provider, retriever: retriever, synth: synth, logger: logger}
}

// Answer retrieves the best fragments for the query and synthesizes an
// answer. Only validation and embedding failures are returned; a failed
// retrieval is answered as if the partition were empty.
func (r *Responder) Answer(ctx context.Context, req QueryRequest) (synthesis.Answer, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Answer")
	defer span.End()

	vector, limit, err := r.prepare(ctx, req)
	if err != nil {
		span.RecordError(err)
		return synthesis.Answer{}, err
	}
	ctx = logging.WithTenantID(ctx, req.TenantID)

	res, err := r.retriever.Retrieve(ctx, req.TenantID, vector, limit)
	if err != nil {
		r.logger.Warn(ctx, "retrieval failed, answering without context", zap.Error(err))
		res = retrieval.Result{Hits: []vectorstore.Hit{}}
	}

	return r.synth.Synthesize(ctx, strings.TrimSpace(req.Query), res.Hits), nil
}

// Search returns the ranked fragments without synthesis.
func (r *Responder) Search(ctx context.Context, req QueryRequest) (retrieval.Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Search")
	defer span.End()

	vector, limit, err := r.prepare(ctx, req)
	if err != nil {
		span.RecordError(err)
		return retrieval.Result{}, err
	}
	res, err := r.retriever.Retrieve(logging.WithTenantID(ctx, req.TenantID), req.TenantID, vector, limit)
	if err != nil {
		return retrieval.Result{}, err
	}
	if res.Hits == nil {
		res.Hits = []vectorstore.Hit{}
	}
	return res, nil
}

// Limit normalizes a requested result count.
func (r *Responder) Limit(requested int) int {
	switch {
	case requested <= 0:
		return r.cfg.DefaultLimit
	case requested > r.cfg.MaxLimit:
		return r.cfg.MaxLimit
	default:
		return requested
	}
}

func (r *Responder) prepare(ctx context.Context, req QueryRequest) ([]float32, int, error) {
	query := strings.TrimSpace(req.Query)
	if n := utf8.RuneCountInString(query); n < r.cfg.MinLength {
		return nil, 0, fmt.Errorf("%w: %d characters, need at least %d", ragerr.ErrQueryTooShort, n, r.cfg.MinLength)
	}
	if err := tenant.Validate(req.TenantID); err != nil {
		return nil, 0, err
	}
	vector, err := r.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	return vector, r.Limit(req.Limit), nil
}
