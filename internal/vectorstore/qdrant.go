package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var tracer = otel.Tracer("ragd.vectorstore.qdrant")

// scrollPageSize bounds a single scroll request.
const scrollPageSize = 256

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string

	// Port is the gRPC port (6334), not the REST port.
	Port int

	Collection string

	// Dimension is the vector size of the collection. Fragments with any
	// other length are skipped on upsert.
	Dimension int

	UseTLS bool
	APIKey string

	// MaxRetries bounds retries of transient gRPC failures. Backoff starts
	// at RetryBackoff and doubles each attempt.
	MaxRetries   int
	RetryBackoff time.Duration

	// MaxMessageSize is the gRPC send/receive limit in bytes.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: qdrant host required", ragerr.ErrConfiguration)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid qdrant port %d", ragerr.ErrConfiguration, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ragerr.ErrConfiguration)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: vector dimension required", ragerr.ErrConfiguration)
	}
	return nil
}

// qdrantClient is the subset of *qdrant.Client the store uses.
type qdrantClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	ScrollAndOffset(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// QdrantStore is a Store backed by Qdrant's native gRPC API. All tenants
// share one collection; partitions are enforced with a payload filter on
// tenant_id, which is indexed as a keyword field along with document_id.
type QdrantStore struct {
	client qdrantClient
	config QdrantConfig
	logger *logging.Logger

	// readyMu guards ready, which is set once EnsureCollection succeeds.
	// Upsert re-runs it until then, so a store that was down at startup
	// recovers without a restart.
	readyMu sync.Mutex
	ready   bool
}

// NewQdrantStore creates the gRPC client. The connection is established
// lazily; call EnsureCollection or Health to verify it.
func NewQdrantStore(config QdrantConfig, logger *logging.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating qdrant client: %v", ragerr.ErrStoreUnavailable, err)
	}

	if !config.UseTLS && logger != nil {
		logger.Warn(context.Background(), "qdrant gRPC connection uses plaintext",
			zap.String("host", config.Host))
	}

	return newQdrantStore(config, client, logger), nil
}

func newQdrantStore(config QdrantConfig, client qdrantClient, logger *logging.Logger) *QdrantStore {
	config.ApplyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QdrantStore{client: client, config: config, logger: logger}
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// retry runs operation with exponential backoff on transient errors.
// Failures are returned wrapped in ragerr.ErrStoreUnavailable.
func (s *QdrantStore) retry(ctx context.Context, name string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%w: %s: %v", ragerr.ErrStoreUnavailable, name, err)
		}
		if attempt >= s.config.MaxRetries {
			return fmt.Errorf("%w: %s failed after %d retries: %v", ragerr.ErrStoreUnavailable, name, s.config.MaxRetries, err)
		}

		s.logger.Debug(ctx, "retrying qdrant operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ragerr.ErrStoreUnavailable, name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	span.End()
}

// indexedFields are the payload fields every filter matches on.
var indexedFields = []string{KeyTenantID, KeyDocumentID}

// EnsureCollection creates the collection with cosine distance if it is
// missing, or checks that an existing one has the configured size and
// metric. A mismatch is a configuration error. The keyword payload indexes
// are ensured in both cases; Qdrant treats re-creating one as a no-op.
func (s *QdrantStore) EnsureCollection(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection",
		trace.WithAttributes(attribute.String("collection", s.config.Collection)))
	defer func() { endSpan(span, err) }()
	defer observe("qdrant", "ensure_collection", time.Now(), &err)

	var exists bool
	err = s.retry(ctx, "collection_exists", func() error {
		var e error
		exists, e = s.client.CollectionExists(ctx, s.config.Collection)
		return e
	})
	if err != nil {
		return err
	}

	if exists {
		err = s.checkCollection(ctx)
	} else {
		err = s.createCollection(ctx)
	}
	if err != nil {
		return err
	}

	for _, field := range indexedFields {
		err = s.retry(ctx, "create_field_index", func() error {
			_, e := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: s.config.Collection,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
				Wait:           qdrant.PtrOf(true),
			})
			return e
		})
		if err != nil {
			return err
		}
	}

	s.readyMu.Lock()
	s.ready = true
	s.readyMu.Unlock()
	return nil
}

func (s *QdrantStore) createCollection(ctx context.Context) error {
	err := s.retry(ctx, "create_collection", func() error {
		e := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.config.Dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		// Another replica may have created it between the check and here.
		if st, ok := status.FromError(e); ok && st.Code() == grpccodes.AlreadyExists {
			return nil
		}
		return e
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "created qdrant collection",
		zap.String("collection", s.config.Collection),
		zap.Int("dimension", s.config.Dimension))
	return nil
}

// checkCollection rejects an existing collection whose single unnamed
// vector does not match the configured dimension and cosine distance.
func (s *QdrantStore) checkCollection(ctx context.Context) error {
	var info *qdrant.CollectionInfo
	err := s.retry(ctx, "get_collection_info", func() error {
		var e error
		info, e = s.client.GetCollectionInfo(ctx, s.config.Collection)
		return e
	})
	if err != nil {
		return err
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	switch {
	case params == nil:
		return fmt.Errorf("%w: collection %s has no single unnamed vector", ragerr.ErrConfiguration, s.config.Collection)
	case params.GetSize() != uint64(s.config.Dimension):
		return fmt.Errorf("%w: collection %s has vector size %d, configured dimension is %d",
			ragerr.ErrConfiguration, s.config.Collection, params.GetSize(), s.config.Dimension)
	case params.GetDistance() != qdrant.Distance_Cosine:
		return fmt.Errorf("%w: collection %s uses %s distance, expected Cosine",
			ragerr.ErrConfiguration, s.config.Collection, params.GetDistance())
	}
	return nil
}

// ensureReady runs EnsureCollection until it has succeeded once.
func (s *QdrantStore) ensureReady(ctx context.Context) error {
	s.readyMu.Lock()
	ready := s.ready
	s.readyMu.Unlock()
	if ready {
		return nil
	}
	return s.EnsureCollection(ctx)
}

// Upsert writes fragments with deterministic point ids.
func (s *QdrantStore) Upsert(ctx context.Context, tenantID, documentID string, fragments []Fragment) (result UpsertResult, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert", trace.WithAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("fragment_count", len(fragments)),
	))
	defer func() { endSpan(span, err) }()
	defer observe("qdrant", "upsert", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return result, err
	}
	if err = checkDocumentID(documentID); err != nil {
		return result, err
	}
	if err = s.ensureReady(ctx); err != nil {
		return result, err
	}

	valid, skipped := partitionFragments(fragments, s.config.Dimension)
	result.Skipped = len(skipped)
	if len(skipped) > 0 {
		FragmentsSkipped.WithLabelValues("qdrant").Add(float64(len(skipped)))
		s.logger.Warn(ctx, "skipping fragments with wrong vector dimension",
			zap.String("tenant_id", tenantID),
			zap.String("document_id", documentID),
			zap.Ints("chunk_indexes", skipped),
			zap.Int("expected_dimension", s.config.Dimension))
	}
	if len(valid) == 0 {
		return result, ragerr.ErrNoValidFragments
	}

	points := make([]*qdrant.PointStruct, len(valid))
	for i, f := range valid {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(documentID, f.ChunkIndex)),
			Vectors: qdrant.NewVectors(f.Vector...),
			Payload: map[string]*qdrant.Value{
				KeyTenantID:   {Kind: &qdrant.Value_StringValue{StringValue: tenantID}},
				KeyDocumentID: {Kind: &qdrant.Value_StringValue{StringValue: documentID}},
				KeyChunkIndex: {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(f.ChunkIndex)}},
				KeyText:       {Kind: &qdrant.Value_StringValue{StringValue: f.Text}},
			},
		}
	}

	err = s.retry(ctx, "upsert", func() error {
		_, e := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return e
	})
	if err != nil {
		return result, err
	}

	result.Stored = len(points)
	span.SetAttributes(attribute.Int("points_stored", result.Stored))
	return result, nil
}

// Query runs HNSW search restricted to the tenant partition.
func (s *QdrantStore) Query(ctx context.Context, tenantID string, vector []float32, limit int) (hits []Hit, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Query", trace.WithAttributes(attribute.Int("limit", limit)))
	defer func() { endSpan(span, err) }()
	defer observe("qdrant", "query", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return nil, err
	}
	if len(vector) != s.config.Dimension {
		return nil, fmt.Errorf("%w: got dimension %d, expected %d", ragerr.ErrInvalidQueryVector, len(vector), s.config.Dimension)
	}
	if limit <= 0 {
		return []Hit{}, nil
	}

	var points []*qdrant.ScoredPoint
	err = s.retry(ctx, "query", func() error {
		var e error
		points, e = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Filter:         tenantFilter(tenantID),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return e
	})
	if err != nil {
		return nil, err
	}

	hits = make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, Hit{
			Text:       p.GetPayload()[KeyText].GetStringValue(),
			DocumentID: p.GetPayload()[KeyDocumentID].GetStringValue(),
			ChunkIndex: int(p.GetPayload()[KeyChunkIndex].GetIntegerValue()),
			Score:      p.GetScore(),
		})
	}
	span.SetAttributes(attribute.Int("results_count", len(hits)))
	return hits, nil
}

// Scroll pages through the tenant partition until limit points are read.
func (s *QdrantStore) Scroll(ctx context.Context, tenantID string, limit int) (candidates []Candidate, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Scroll", trace.WithAttributes(attribute.Int("limit", limit)))
	defer func() { endSpan(span, err) }()
	defer observe("qdrant", "scroll", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return nil, err
	}

	candidates = make([]Candidate, 0, min(limit, scrollPageSize))
	var offset *qdrant.PointId
	for len(candidates) < limit {
		page := min(limit-len(candidates), scrollPageSize)

		var (
			points []*qdrant.RetrievedPoint
			next   *qdrant.PointId
		)
		err = s.retry(ctx, "scroll", func() error {
			var e error
			points, next, e = s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
				CollectionName: s.config.Collection,
				Filter:         tenantFilter(tenantID),
				Offset:         offset,
				Limit:          qdrant.PtrOf(uint32(page)),
				WithPayload:    qdrant.NewWithPayload(true),
				WithVectors:    qdrant.NewWithVectors(true),
			})
			return e
		})
		if err != nil {
			return nil, err
		}

		for _, p := range points {
			candidates = append(candidates, Candidate{
				Text:       p.GetPayload()[KeyText].GetStringValue(),
				DocumentID: p.GetPayload()[KeyDocumentID].GetStringValue(),
				ChunkIndex: int(p.GetPayload()[KeyChunkIndex].GetIntegerValue()),
				Vector:     denseVector(p.GetVectors()),
			})
		}

		if next == nil || len(points) < page {
			break
		}
		offset = next
	}

	span.SetAttributes(attribute.Int("results_count", len(candidates)))
	return candidates, nil
}

// DeletePartition deletes every point matching the tenant filter.
func (s *QdrantStore) DeletePartition(ctx context.Context, tenantID string) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeletePartition")
	defer func() { endSpan(span, err) }()
	defer observe("qdrant", "delete_partition", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return err
	}
	return s.deleteByFilter(ctx, tenantFilter(tenantID))
}

// DeleteDocument deletes the points of one document inside the tenant
// partition. Returns ragerr.ErrDocumentNotFound when the tenant has no
// points for that document.
func (s *QdrantStore) DeleteDocument(ctx context.Context, tenantID, documentID string) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteDocument")
	defer func() { endSpan(span, err) }()
	defer observe("qdrant", "delete_document", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return err
	}
	if err = checkDocumentID(documentID); err != nil {
		return err
	}

	filter := tenantFilter(tenantID, matchKeyword(KeyDocumentID, documentID))
	n, err := s.count(ctx, filter)
	if err != nil {
		return err
	}
	if n == 0 {
		return ragerr.ErrDocumentNotFound
	}
	return s.deleteByFilter(ctx, filter)
}

// Count returns the exact number of points in the tenant partition.
func (s *QdrantStore) Count(ctx context.Context, tenantID string) (n int, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Count")
	defer func() { endSpan(span, err) }()
	defer observe("qdrant", "count", time.Now(), &err)

	if err = tenant.Validate(tenantID); err != nil {
		return 0, err
	}
	return s.count(ctx, tenantFilter(tenantID))
}

// Health checks the gRPC connection.
func (s *QdrantStore) Health(ctx context.Context) error {
	_, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ragerr.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *QdrantStore) count(ctx context.Context, filter *qdrant.Filter) (int, error) {
	var n uint64
	err := s.retry(ctx, "count", func() error {
		var e error
		n, e = s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.Collection,
			Filter:         filter,
			Exact:          qdrant.PtrOf(true),
		})
		return e
	})
	return int(n), err
}

func (s *QdrantStore) deleteByFilter(ctx context.Context, filter *qdrant.Filter) error {
	return s.retry(ctx, "delete", func() error {
		_, e := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.Collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
			},
			Wait: qdrant.PtrOf(true),
		})
		return e
	})
}

// tenantFilter is the only way filters are built in this package, so every
// request carries the tenant condition.
func tenantFilter(tenantID string, extra ...*qdrant.Condition) *qdrant.Filter {
	return &qdrant.Filter{
		Must: append([]*qdrant.Condition{matchKeyword(KeyTenantID, tenantID)}, extra...),
	}
}

func matchKeyword(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func denseVector(vectors *qdrant.VectorsOutput) []float32 {
	vec := vectors.GetVector()
	if vec == nil {
		return nil
	}
	if dense := vec.GetDense(); dense != nil {
		return dense.GetData()
	}
	return vec.GetData()
}

var _ Store = (*QdrantStore)(nil)
