package mcp

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/pipeline"
	"github.com/fyrsmithlabs/ragd/internal/tenant"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ingestInput struct {
	TenantID   string `json:"tenant_id" jsonschema:"Tenant that owns the document"`
	Text       string `json:"text" jsonschema:"Document text to ingest"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"Optional UUID; re-ingesting with the same id overwrites"`
	Source     string `json:"source,omitempty" jsonschema:"Optional origin of the text, e.g. a file name"`
}

type ingestOutput struct {
	DocumentID       string `json:"document_id" jsonschema:"Id of the stored document"`
	FragmentsTotal   int    `json:"fragments_total" jsonschema:"Fragments produced by segmentation"`
	FragmentsStored  int    `json:"fragments_stored" jsonschema:"Fragments written to the store"`
	FragmentsFailed  int    `json:"fragments_failed" jsonschema:"Fragments dropped because embedding failed"`
	FragmentsSkipped int    `json:"fragments_skipped" jsonschema:"Fragments the store rejected for a wrong vector dimension"`
	Partial          bool   `json:"partial" jsonschema:"True when some fragments were dropped"`
	Summary          string `json:"summary,omitempty" jsonschema:"Short summary when enabled"`
}

type queryInput struct {
	TenantID string `json:"tenant_id" jsonschema:"Tenant whose documents are searched"`
	Query    string `json:"query" jsonschema:"Question or search text"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum fragments to use (default 5, max 50)"`
}

type queryOutput struct {
	Answer    string            `json:"answer" jsonschema:"Answer grounded in the tenant's documents"`
	Generated bool              `json:"generated" jsonschema:"False when the answer is a fallback quote"`
	Sources   []vectorstore.Hit `json:"sources" jsonschema:"Fragments the answer is based on, best first"`
}

type searchOutput struct {
	Hits  []vectorstore.Hit `json:"hits" jsonschema:"Ranked fragments, best first"`
	Count int               `json:"count" jsonschema:"Number of hits"`
}

type deleteInput struct {
	TenantID   string `json:"tenant_id" jsonschema:"Tenant whose documents are deleted"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"Delete only this document; omit to delete every document of the tenant"`
}

type deleteOutput struct {
	Deleted    string `json:"deleted" jsonschema:"document or partition"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"Id of the deleted document"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Store a text document in the tenant's knowledge base so it can be searched and queried",
	}, s.ingestDocument)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_documents",
		Description: "Answer a question using only the tenant's stored documents",
	}, s.queryDocuments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_documents",
		Description: "Return the stored fragments most similar to a query, without generating an answer",
	}, s.searchDocuments)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_documents",
		Description: "Delete one document, or every document of the tenant when no document_id is given",
	}, s.deleteDocuments)
}

// instrument records metrics for one tool call and tags the context with the
// tenant. The returned func must be called with the tool's final error.
func (s *Server) instrument(ctx context.Context, tool, tenantID string) (context.Context, func(error), error) {
	done := s.metrics.Begin(ctx, tool)

	tctx, err := tenant.WithID(ctx, tenantID)
	if err != nil {
		done(err)
		return ctx, nil, err
	}
	return logging.WithTenantID(tctx, tenantID), done, nil
}

func (s *Server) ingestDocument(ctx context.Context, _ *mcp.CallToolRequest, args ingestInput) (*mcp.CallToolResult, ingestOutput, error) {
	ctx, done, err := s.instrument(ctx, "ingest_document", args.TenantID)
	if err != nil {
		return nil, ingestOutput{}, err
	}

	report, err := s.ingestor.Ingest(ctx, pipeline.IngestRequest{
		TenantID:   args.TenantID,
		Text:       args.Text,
		DocumentID: args.DocumentID,
		Source:     args.Source,
	})
	done(err)
	if err != nil {
		return nil, ingestOutput{}, fmt.Errorf("ingest failed: %w", err)
	}

	out := ingestOutput{
		DocumentID:       report.DocumentID,
		FragmentsTotal:   report.FragmentsTotal,
		FragmentsStored:  report.FragmentsStored,
		FragmentsFailed:  report.FragmentsFailed,
		FragmentsSkipped: report.FragmentsSkipped,
		Partial:          report.Partial,
		Summary:          report.Summary,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Stored %d of %d fragments as document %s", out.FragmentsStored, out.FragmentsTotal, out.DocumentID)},
		},
	}, out, nil
}

func (s *Server) queryDocuments(ctx context.Context, _ *mcp.CallToolRequest, args queryInput) (*mcp.CallToolResult, queryOutput, error) {
	ctx, done, err := s.instrument(ctx, "query_documents", args.TenantID)
	if err != nil {
		return nil, queryOutput{}, err
	}

	answer, err := s.responder.Answer(ctx, pipeline.QueryRequest{TenantID: args.TenantID, Query: args.Query, Limit: args.Limit})
	done(err)
	if err != nil {
		return nil, queryOutput{}, fmt.Errorf("query failed: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: answer.Text}},
	}, queryOutput{Answer: answer.Text, Generated: answer.Generated, Sources: answer.Sources}, nil
}

func (s *Server) searchDocuments(ctx context.Context, _ *mcp.CallToolRequest, args queryInput) (*mcp.CallToolResult, searchOutput, error) {
	ctx, done, err := s.instrument(ctx, "search_documents", args.TenantID)
	if err != nil {
		return nil, searchOutput{}, err
	}

	res, err := s.responder.Search(ctx, pipeline.QueryRequest{TenantID: args.TenantID, Query: args.Query, Limit: args.Limit})
	done(err)
	if err != nil {
		return nil, searchOutput{}, fmt.Errorf("search failed: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Found %d fragments", len(res.Hits))}},
	}, searchOutput{Hits: res.Hits, Count: len(res.Hits)}, nil
}

func (s *Server) deleteDocuments(ctx context.Context, _ *mcp.CallToolRequest, args deleteInput) (*mcp.CallToolResult, deleteOutput, error) {
	ctx, done, err := s.instrument(ctx, "delete_documents", args.TenantID)
	if err != nil {
		return nil, deleteOutput{}, err
	}

	out := deleteOutput{Deleted: "partition"}
	if args.DocumentID != "" {
		out = deleteOutput{Deleted: "document", DocumentID: args.DocumentID}
		err = s.ingestor.DeleteDocument(ctx, args.TenantID, args.DocumentID)
	} else {
		err = s.ingestor.DeletePartition(ctx, args.TenantID)
	}
	done(err)
	if err != nil {
		return nil, deleteOutput{}, fmt.Errorf("delete failed: %w", err)
	}

	msg := "Deleted every document of the tenant"
	if out.DocumentID != "" {
		msg = "Deleted document " + out.DocumentID
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}, out, nil
}
