package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/segment"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("ragd.pipeline")

// Ingestor writes documents into tenant partitions.
type Ingestor struct {
	cfg        IngestConfig
	segmenter  *segment.Segmenter
	provider   embeddings.Provider
	store      vectorstore.Store
	redactor   Redactor
	summarizer Summarizer
	publisher  events.Publisher
	logger     *logging.Logger
}

// IngestorOption configures optional Ingestor collaborators.
type IngestorOption func(*Ingestor)

// WithRedactor scrubs secrets from text before segmentation.
func WithRedactor(r Redactor) IngestorOption {
	return func(i *Ingestor) { i.redactor = r }
}

// WithSummarizer attaches summaries to reports when enabled in IngestConfig.
func WithSummarizer(s Summarizer) IngestorOption {
	return func(i *Ingestor) { i.summarizer = s }
}

// WithPublisher sends lifecycle events after successful writes.
func WithPublisher(p events.Publisher) IngestorOption {
	return func(i *Ingestor) { i.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) IngestorOption {
	return func(i *Ingestor) { i.logger = l }
}

// NewIngestor returns an Ingestor.
func NewIngestor(cfg IngestConfig, seg *segment.Segmenter, provider embeddings.Provider, store vectorstore.Store, opts ...IngestorOption) *Ingestor {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	i := &Ingestor{
		cfg:       cfg,
		segmenter: seg,
		provider:  provider,
		store:     store,
		publisher: events.Nop{},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest segments, embeds and stores one document.
//
// Fragments whose embedding fails are dropped and counted in the report;
// the call fails only when nothing could be stored.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (report IngestReport, err error) {
	ctx, span := tracer.Start(ctx, "pipeline.Ingest")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if n := utf8.RuneCountInString(strings.TrimSpace(req.Text)); n < i.cfg.MinTextLength {
		return IngestReport{}, fmt.Errorf("%w: %d characters, need at least %d", ragerr.ErrTextTooShort, n, i.cfg.MinTextLength)
	}
	if err := tenant.Validate(req.TenantID); err != nil {
		return IngestReport{}, err
	}

	documentID := req.DocumentID
	if documentID == "" {
		documentID = uuid.NewString()
	} else if _, err := uuid.Parse(documentID); err != nil {
		return IngestReport{}, fmt.Errorf("%w: %q is not a UUID", ragerr.ErrInvalidDocumentID, documentID)
	}

	ctx = logging.WithTenantID(ctx, req.TenantID)
	ctx = logging.WithDocumentID(ctx, documentID)
	span.SetAttributes(attribute.String("document_id", documentID))

	text := req.Text
	report.DocumentID = documentID
	if i.redactor != nil {
		res := i.redactor.Redact(text)
		text = res.Text
		report.Redactions = res.Count()
		if report.Redactions > 0 {
			i.logger.Info(ctx, "redacted secrets from document", zap.Int("redactions", report.Redactions))
		}
	}

	pieces := i.segmenter.Split(text)
	if len(pieces) == 0 {
		return IngestReport{}, fmt.Errorf("%w: text is empty after normalization", ragerr.ErrNoFragmentsProduced)
	}
	report.FragmentsTotal = len(pieces)

	results := embeddings.EmbedBatch(ctx, i.provider, pieces, i.cfg.Parallelism)
	fragments := make([]vectorstore.Fragment, 0, len(pieces))
	unavailable := 0
	for idx, r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, ragerr.ErrEmbeddingUnavailable) {
				unavailable++
			}
			i.logger.Debug(ctx, "fragment embedding failed", zap.Int("chunk_index", idx), zap.Error(r.Err))
			continue
		}
		fragments = append(fragments, vectorstore.Fragment{ChunkIndex: idx, Text: pieces[idx], Vector: r.Vector})
	}

	if len(fragments) == 0 {
		if err := ctx.Err(); err != nil {
			return IngestReport{}, fmt.Errorf("ingest cancelled: %w", err)
		}
		if unavailable == len(pieces) {
			return IngestReport{}, fmt.Errorf("%w: %w", ragerr.ErrNoFragmentsProduced, ragerr.ErrEmbeddingUnavailable)
		}
		return IngestReport{}, fmt.Errorf("%w: all %d embeddings failed", ragerr.ErrNoFragmentsProduced, len(pieces))
	}

	stored, err := i.store.Upsert(ctx, req.TenantID, documentID, fragments)
	if err != nil {
		return IngestReport{}, err
	}

	report.FragmentsStored = stored.Stored
	report.FragmentsFailed = len(pieces) - len(fragments)
	report.FragmentsSkipped = stored.Skipped
	report.Partial = report.FragmentsStored < report.FragmentsTotal

	if i.cfg.SummarizeOnIngest && i.summarizer != nil {
		report.Summary = i.summarizer.Summarize(ctx, text, i.cfg.SummaryLength)
	}

	e := events.New(events.IngestCompleted, req.TenantID)
	e.DocumentID = documentID
	e.Fragments = report.FragmentsStored
	e.Failed = report.FragmentsFailed
	e.Skipped = report.FragmentsSkipped
	e.Source = req.Source
	i.publish(ctx, e)

	fields := []zap.Field{
		zap.Int("fragments_total", report.FragmentsTotal),
		zap.Int("fragments_stored", report.FragmentsStored),
	}
	if report.Partial {
		i.logger.Warn(ctx, "document partially ingested", append(fields,
			zap.Int("fragments_failed", report.FragmentsFailed),
			zap.Int("fragments_skipped", report.FragmentsSkipped))...)
	} else {
		i.logger.Info(ctx, "document ingested", fields...)
	}
	return report, nil
}

// DeletePartition removes every fragment of the tenant. Best effort: on
// failure some fragments may remain and the call can be retried.
func (i *Ingestor) DeletePartition(ctx context.Context, tenantID string) error {
	if err := tenant.Validate(tenantID); err != nil {
		return err
	}
	ctx = logging.WithTenantID(ctx, tenantID)
	if err := i.store.DeletePartition(ctx, tenantID); err != nil {
		return err
	}
	i.logger.Info(ctx, "partition deleted")
	i.publish(ctx, events.New(events.PartitionDeleted, tenantID))
	return nil
}

// DeleteDocument removes one document of the tenant.
func (i *Ingestor) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	if err := tenant.Validate(tenantID); err != nil {
		return err
	}
	ctx = logging.WithDocumentID(logging.WithTenantID(ctx, tenantID), documentID)
	if err := i.store.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return err
	}
	i.logger.Info(ctx, "document deleted")
	e := events.New(events.DocumentDeleted, tenantID)
	e.DocumentID = documentID
	i.publish(ctx, e)
	return nil
}

// Stats returns the fragment count of the tenant partition.
func (i *Ingestor) Stats(ctx context.Context, tenantID string) (Stats, error) {
	if err := tenant.Validate(tenantID); err != nil {
		return Stats{}, err
	}
	n, err := i.store.Count(ctx, tenantID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TenantID: tenantID, Fragments: n}, nil
}

func (i *Ingestor) publish(ctx context.Context, e events.Event) {
	if err := i.publisher.Publish(ctx, e); err != nil {
		i.logger.Warn(ctx, "event publish failed", zap.String("event", string(e.Type)), zap.Error(err))
	}
}
