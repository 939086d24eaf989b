package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("ragd.vectorstore.chromem")

// ChromemConfig configures the embedded store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress enables gzip compression of persisted documents.
	Compress bool

	Collection string
	Dimension  int
}

// ChromemStore is a Store backed by chromem-go, for local development and
// tests. Vectors are always computed by the caller.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     ChromemConfig
	logger     *logging.Logger
}

// NewChromemStore opens (or creates) the embedded database.
func NewChromemStore(config ChromemConfig, logger *logging.Logger) (*ChromemStore, error) {
	if config.Collection == "" {
		return nil, fmt.Errorf("%w: collection name required", ragerr.ErrConfiguration)
	}
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("%w: vector dimension required", ragerr.ErrConfiguration)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(config.Path)
		if err != nil {
			return nil, err
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem database at %s: %v", ragerr.ErrStoreUnavailable, path, err)
		}
	}

	c, err := db.GetOrCreateCollection(config.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("%w: creating collection %s: %v", ragerr.ErrStoreUnavailable, config.Collection, err)
	}

	return &ChromemStore{db: db, collection: c, config: config, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%w: resolving home directory: %v", ragerr.ErrConfiguration, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}

// noEmbedding is installed as the collection's embedding function; every
// document and query arrives with a precomputed vector.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem store does not compute embeddings")
}

// EnsureCollection is a no-op; the collection is created on open.
func (s *ChromemStore) EnsureCollection(context.Context) error { return nil }

// Upsert writes fragments. chromem replaces documents with an existing id.
func (s *ChromemStore) Upsert(ctx context.Context, tenantID, documentID string, fragments []Fragment) (result UpsertResult, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert",
		trace.WithAttributes(attribute.Int("fragment_count", len(fragments))))
	defer func() { endSpan(span, err) }()
	defer observe("chromem", "upsert", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return result, err
	}
	if err = checkDocumentID(documentID); err != nil {
		return result, err
	}

	valid, skipped := partitionFragments(fragments, s.config.Dimension)
	result.Skipped = len(skipped)
	if len(skipped) > 0 {
		FragmentsSkipped.WithLabelValues("chromem").Add(float64(len(skipped)))
		s.logger.Warn(ctx, "skipping fragments with wrong vector dimension",
			zap.String("tenant_id", tenantID),
			zap.String("document_id", documentID),
			zap.Ints("chunk_indexes", skipped),
			zap.Int("expected_dimension", s.config.Dimension))
	}
	if len(valid) == 0 {
		return result, ragerr.ErrNoValidFragments
	}

	docs := make([]chromem.Document, len(valid))
	for i, f := range valid {
		docs[i] = chromem.Document{
			ID:      PointID(documentID, f.ChunkIndex),
			Content: f.Text,
			Metadata: map[string]string{
				KeyTenantID:   tenantID,
				KeyDocumentID: documentID,
				KeyChunkIndex: strconv.Itoa(f.ChunkIndex),
			},
			Embedding: f.Vector,
		}
	}

	if err = s.collection.AddDocuments(ctx, docs, 1); err != nil {
		return result, fmt.Errorf("%w: adding documents: %v", ragerr.ErrStoreUnavailable, err)
	}

	result.Stored = len(docs)
	return result, nil
}

// Query runs chromem's exhaustive similarity search within the partition.
func (s *ChromemStore) Query(ctx context.Context, tenantID string, vector []float32, limit int) (hits []Hit, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query", trace.WithAttributes(attribute.Int("limit", limit)))
	defer func() { endSpan(span, err) }()
	defer observe("chromem", "query", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return nil, err
	}
	if len(vector) != s.config.Dimension {
		return nil, fmt.Errorf("%w: got dimension %d, expected %d", ragerr.ErrInvalidQueryVector, len(vector), s.config.Dimension)
	}

	results, err := s.search(ctx, vector, limit, map[string]string{KeyTenantID: tenantID})
	if err != nil {
		return nil, err
	}

	hits = make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			Text:       r.Content,
			DocumentID: r.Metadata[KeyDocumentID],
			ChunkIndex: chunkIndex(r.Metadata),
			Score:      r.Similarity,
		}
	}
	return hits, nil
}

// Scroll reads up to limit tenant documents. chromem has no listing API, so
// this is a filtered search against a fixed probe vector; the order is
// stable for a given collection state.
func (s *ChromemStore) Scroll(ctx context.Context, tenantID string, limit int) (candidates []Candidate, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Scroll", trace.WithAttributes(attribute.Int("limit", limit)))
	defer func() { endSpan(span, err) }()
	defer observe("chromem", "scroll", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return nil, err
	}

	results, err := s.search(ctx, s.probe(), limit, map[string]string{KeyTenantID: tenantID})
	if err != nil {
		return nil, err
	}

	candidates = make([]Candidate, len(results))
	for i, r := range results {
		candidates[i] = Candidate{
			Text:       r.Content,
			DocumentID: r.Metadata[KeyDocumentID],
			ChunkIndex: chunkIndex(r.Metadata),
			Vector:     r.Embedding,
		}
	}
	return candidates, nil
}

// DeletePartition removes all documents of the tenant.
func (s *ChromemStore) DeletePartition(ctx context.Context, tenantID string) (err error) {
	defer observe("chromem", "delete_partition", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return err
	}
	if err = s.collection.Delete(ctx, map[string]string{KeyTenantID: tenantID}, nil); err != nil {
		return fmt.Errorf("%w: deleting partition: %v", ragerr.ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteDocument removes one document of the tenant.
func (s *ChromemStore) DeleteDocument(ctx context.Context, tenantID, documentID string) (err error) {
	defer observe("chromem", "delete_document", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return err
	}
	if err = checkDocumentID(documentID); err != nil {
		return err
	}

	where := map[string]string{KeyTenantID: tenantID, KeyDocumentID: documentID}
	found, err := s.search(ctx, s.probe(), 1, where)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return ragerr.ErrDocumentNotFound
	}

	if err = s.collection.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("%w: deleting document: %v", ragerr.ErrStoreUnavailable, err)
	}
	return nil
}

// Count returns the number of documents in the tenant partition.
func (s *ChromemStore) Count(ctx context.Context, tenantID string) (n int, err error) {
	defer observe("chromem", "count", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return 0, err
	}
	results, err := s.search(ctx, s.probe(), s.collection.Count(), map[string]string{KeyTenantID: tenantID})
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

// Health always succeeds for the embedded store.
func (s *ChromemStore) Health(context.Context) error { return nil }

// Close is a no-op; persistent writes happen on each operation.
func (s *ChromemStore) Close() error { return nil }

// search caps n at the collection size, which chromem requires.
func (s *ChromemStore) search(ctx context.Context, vector []float32, n int, where map[string]string) ([]chromem.Result, error) {
	c := s.collection
	n = min(n, c.Count())
	if n <= 0 {
		return []chromem.Result{}, nil
	}

	results, err := c.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: querying collection: %v", ragerr.ErrStoreUnavailable, err)
	}
	return results, nil
}

// probe is a unit vector used for unranked reads.
func (s *ChromemStore) probe() []float32 {
	v := make([]float32, s.config.Dimension)
	v[0] = 1
	return v
}

func chunkIndex(metadata map[string]string) int {
	i, _ := strconv.Atoi(metadata[KeyChunkIndex])
	return i
}

var _ Store = (*ChromemStore)(nil)
