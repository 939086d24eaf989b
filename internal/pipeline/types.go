package pipeline

import (
	"context"

	"github.com/fyrsmithlabs/ragd/internal/secrets"
)

// IngestRequest is one document to ingest.
type IngestRequest struct {
	TenantID string
	Text     string
	// DocumentID must be a UUID when set. Re-ingesting with the same id
	// overwrites the fragments stored for each chunk index.
	DocumentID string
	Source     string
}

// IngestReport describes what an ingest stored. FragmentsFailed counts
// fragments whose embedding failed; FragmentsSkipped counts fragments the
// store rejected for a wrong vector dimension.
type IngestReport struct {
	DocumentID       string `json:"document_id"`
	FragmentsTotal   int    `json:"fragments_total"`
	FragmentsStored  int    `json:"fragments_stored"`
	FragmentsFailed  int    `json:"fragments_failed"`
	FragmentsSkipped int    `json:"fragments_skipped"`
	Partial          bool   `json:"partial"`
	Redactions       int    `json:"redactions,omitempty"`
	Summary          string `json:"summary,omitempty"`
}

// QueryRequest is a question against a tenant partition.
type QueryRequest struct {
	TenantID string
	Query    string
	// Limit <= 0 selects the configured default.
	Limit int
}

// Stats summarises a tenant partition.
type Stats struct {
	TenantID  string `json:"tenant_id"`
	Fragments int    `json:"fragments"`
}

// IngestConfig holds ingestion limits.
type IngestConfig struct {
	MinTextLength     int
	Parallelism       int
	SummarizeOnIngest bool
	SummaryLength     int
}

// QueryConfig holds query limits.
type QueryConfig struct {
	MinLength    int
	DefaultLimit int
	MaxLimit     int
}

// DefaultIngestConfig returns the stock ingestion limits.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{MinTextLength: 50, Parallelism: 4, SummaryLength: 200}
}

// DefaultQueryConfig returns the stock query limits.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{MinLength: 3, DefaultLimit: 5, MaxLimit: 50}
}

// Redactor removes secrets from text before it is stored.
type Redactor interface {
	Redact(text string) secrets.Result
}

// Summarizer produces a short summary of an ingested document.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxLen int) string
}
