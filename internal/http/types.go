package http

import (
	"github.com/fyrsmithlabs/ragd/internal/pipeline"
	"github.com/fyrsmithlabs/ragd/internal/synthesis"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WhoAmIResponse is the response body for GET /api/v1/whoami.
type WhoAmIResponse struct {
	TenantID string `json:"tenant_id"`
}

// IngestRequest is the request body for POST /api/v1/documents.
type IngestRequest struct {
	Text       string `json:"text"`
	DocumentID string `json:"document_id,omitempty"`
	Source     string `json:"source,omitempty"`
}

// IngestResponse is returned by both ingest endpoints.
type IngestResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
	pipeline.IngestReport
}

// DeleteResponse is returned by the delete endpoints.
type DeleteResponse struct {
	Message    string `json:"message"`
	TenantID   string `json:"tenant_id"`
	DocumentID string `json:"document_id,omitempty"`
}

// QueryRequest is the request body for POST /api/v1/search and /api/v1/query.
type QueryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Query string            `json:"query"`
	Hits  []vectorstore.Hit `json:"hits"`
	Count int               `json:"count"`
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	Query string `json:"query"`
	synthesis.Answer
}

// RedactRequest is the request body for POST /api/v1/redact.
type RedactRequest struct {
	Content string `json:"content"`
}

// RedactResponse is the response body for POST /api/v1/redact.
type RedactResponse struct {
	Content       string   `json:"content"`
	FindingsCount int      `json:"findings_count"`
	Rules         []string `json:"rules,omitempty"`
}

// SegmentRequest is the request body for POST /api/v1/debug/segment.
// Zero sizes select the configured values.
type SegmentRequest struct {
	Text      string `json:"text"`
	ChunkSize int    `json:"chunk_size,omitempty"`
	Overlap   int    `json:"overlap,omitempty"`
}

// SegmentResponse is the response body for POST /api/v1/debug/segment.
type SegmentResponse struct {
	ChunkSize int      `json:"chunk_size"`
	Overlap   int      `json:"overlap"`
	Count     int      `json:"count"`
	Fragments []string `json:"fragments"`
}

// EmbedRequest is the request body for POST /api/v1/debug/embed.
type EmbedRequest struct {
	Text string `json:"text"`
}

// EmbedResponse is the response body for POST /api/v1/debug/embed.
type EmbedResponse struct {
	Dimension int       `json:"dimension"`
	Preview   []float32 `json:"preview"`
}
