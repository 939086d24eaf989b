// Package vectorstore persists fragments in one shared collection,
// partitioned by tenant.
//
// Every read and delete is restricted to the caller's partition inside the
// store. The tenant filter is built here from the tenant id argument and is
// never accepted from callers, so no query can observe another tenant.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/google/uuid"
)

// Payload keys stored with every point.
const (
	KeyTenantID   = "tenant_id"
	KeyDocumentID = "document_id"
	KeyChunkIndex = "chunk_index"
	KeyText       = "text"
)

// pointNamespace seeds deterministic point ids.
var pointNamespace = uuid.MustParse("6f1c3f9e-4a58-4d7e-9b3a-2c8f0d5e7a41")

// Fragment is one embedded window of a document.
type Fragment struct {
	ChunkIndex int
	Text       string
	Vector     []float32
}

// Hit is a fragment returned by a similarity search.
type Hit struct {
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// Candidate is a stored fragment with its vector, read for re-ranking.
type Candidate struct {
	Text       string
	DocumentID string
	ChunkIndex int
	Vector     []float32
}

// UpsertResult counts fragments written and fragments rejected for a wrong
// vector dimension.
type UpsertResult struct {
	Stored  int
	Skipped int
}

// Store is a tenant-partitioned vector collection.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context) error

	// Upsert writes fragments of one document. Re-upserting the same
	// document id and chunk index overwrites the previous point.
	Upsert(ctx context.Context, tenantID, documentID string, fragments []Fragment) (UpsertResult, error)

	// Query runs the backend's own nearest-neighbour search.
	Query(ctx context.Context, tenantID string, vector []float32, limit int) ([]Hit, error)

	// Scroll reads up to limit points with their vectors.
	Scroll(ctx context.Context, tenantID string, limit int) ([]Candidate, error)

	// DeletePartition removes every point of the tenant. Not transactional:
	// a failure may leave some points behind.
	DeletePartition(ctx context.Context, tenantID string) error

	// DeleteDocument removes every point of one document of the tenant.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error

	// Count returns the number of points in the tenant partition.
	Count(ctx context.Context, tenantID string) (int, error)

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error

	Close() error
}

// PointID derives the stable point id for a document chunk.
func PointID(documentID string, chunkIndex int) string {
	return uuid.NewMD5(pointNamespace, fmt.Appendf(nil, "%s_%d", documentID, chunkIndex)).String()
}

func checkDocumentID(documentID string) error {
	if _, err := uuid.Parse(documentID); err != nil {
		return fmt.Errorf("%w: %q is not a UUID", ragerr.ErrInvalidDocumentID, documentID)
	}
	return nil
}

// partitionFragments separates fragments whose vector has the wrong length.
func partitionFragments(fragments []Fragment, dimension int) (valid []Fragment, skipped []int) {
	valid = make([]Fragment, 0, len(fragments))
	for _, f := range fragments {
		if len(f.Vector) != dimension {
			skipped = append(skipped, f.ChunkIndex)
			continue
		}
		valid = append(valid, f)
	}
	return valid, skipped
}
