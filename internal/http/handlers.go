package http

import (
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/ragd/internal/auth"
	"github.com/fyrsmithlabs/ragd/internal/pipeline"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/segment"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// embedPreviewLen is the number of vector components echoed by the embed
// debug endpoint.
const embedPreviewLen = 8

// handleHealth reports whether the vector store is reachable.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:     "ok",
		Version:    s.config.Version,
		Components: map[string]string{"vector_store": "ok"},
	}
	if err := s.svc.Store.Health(c.Request().Context()); err != nil {
		s.logger.Warn(c.Request().Context(), "health check failed", zap.Error(err))
		resp.Status = "degraded"
		resp.Components["vector_store"] = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleWhoAmI(c echo.Context) error {
	tenantID, err := auth.TenantID(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, WhoAmIResponse{TenantID: tenantID})
}

func (s *Server) handleStats(c echo.Context) error {
	tenantID, err := auth.TenantID(c)
	if err != nil {
		return err
	}
	stats, err := s.svc.Ingestor.Stats(c.Request().Context(), tenantID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// handleIngest ingests a JSON text document.
func (s *Server) handleIngest(c echo.Context) error {
	tenantID, err := auth.TenantID(c)
	if err != nil {
		return err
	}

	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	report, err := s.svc.Ingestor.Ingest(c.Request().Context(), pipeline.IngestRequest{
		TenantID:   tenantID,
		Text:       req.Text,
		DocumentID: req.DocumentID,
		Source:     req.Source,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, IngestResponse{Message: ingestMessage(report), IngestReport: report})
}

// handleUpload extracts and ingests a multipart "file" field.
func (s *Server) handleUpload(c echo.Context) error {
	tenantID, err := auth.TenantID(c)
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file field")
	}
	if !s.svc.Extractor.Supported(header.Filename) {
		_, err := s.svc.Extractor.Extract(header.Filename, nil)
		return err
	}
	if header.Size > s.svc.Extractor.MaxBytes() {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}

	f, err := header.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file")
	}
	defer f.Close()

	text, err := s.svc.Extractor.ExtractReader(header.Filename, f)
	if err != nil {
		return err
	}

	report, err := s.svc.Ingestor.Ingest(c.Request().Context(), pipeline.IngestRequest{
		TenantID:   tenantID,
		Text:       text,
		DocumentID: c.FormValue("document_id"),
		Source:     header.Filename,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, IngestResponse{
		Message:      ingestMessage(report),
		Filename:     header.Filename,
		IngestReport: report,
	})
}

func ingestMessage(r pipeline.IngestReport) string {
	if r.Partial {
		return "document partially ingested"
	}
	return "document ingested"
}

func (s *Server) handleDeletePartition(c echo.Context) error {
	tenantID, err := auth.TenantID(c)
	if err != nil {
		return err
	}
	if err := s.svc.Ingestor.DeletePartition(c.Request().Context(), tenantID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DeleteResponse{Message: "all documents deleted", TenantID: tenantID})
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	tenantID, err := auth.TenantID(c)
	if err != nil {
		return err
	}
	documentID := c.Param("id")
	if err := s.svc.Ingestor.DeleteDocument(c.Request().Context(), tenantID, documentID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DeleteResponse{Message: "document deleted", TenantID: tenantID, DocumentID: documentID})
}

func (s *Server) bindQuery(c echo.Context) (pipeline.QueryRequest, error) {
	tenantID, err := auth.TenantID(c)
	if err != nil {
		return pipeline.QueryRequest{}, err
	}
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return pipeline.QueryRequest{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return pipeline.QueryRequest{TenantID: tenantID, Query: req.Query, Limit: req.Limit}, nil
}

// handleSearch returns ranked fragments without an answer.
func (s *Server) handleSearch(c echo.Context) error {
	req, err := s.bindQuery(c)
	if err != nil {
		return err
	}
	res, err := s.svc.Responder.Search(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SearchResponse{Query: req.Query, Hits: res.Hits, Count: len(res.Hits)})
}

// handleQuery answers a question from the tenant's documents.
func (s *Server) handleQuery(c echo.Context) error {
	req, err := s.bindQuery(c)
	if err != nil {
		return err
	}
	answer, err := s.svc.Responder.Answer(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, QueryResponse{Query: req.Query, Answer: answer})
}

// handleRedact scrubs secrets from the provided content without storing it.
func (s *Server) handleRedact(c echo.Context) error {
	var req RedactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	res := s.svc.Redactor.Redact(req.Content)
	resp := RedactResponse{Content: res.Text, FindingsCount: res.Count()}
	for _, f := range res.Findings {
		resp.Rules = append(resp.Rules, f.RuleID)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleSegment shows how text would be split.
func (s *Server) handleSegment(c echo.Context) error {
	var req SegmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	size, overlap := s.config.ChunkSize, s.config.Overlap
	if req.ChunkSize > 0 {
		size, overlap = req.ChunkSize, req.Overlap
	}

	fragments, err := segment.Split(req.Text, size, overlap)
	if err != nil {
		if errors.Is(err, ragerr.ErrConfiguration) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	if fragments == nil {
		fragments = []string{}
	}
	return c.JSON(http.StatusOK, SegmentResponse{ChunkSize: size, Overlap: overlap, Count: len(fragments), Fragments: fragments})
}

// handleEmbed embeds text and echoes the first components.
func (s *Server) handleEmbed(c echo.Context) error {
	var req EmbedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	vec, err := s.svc.Provider.EmbedQuery(c.Request().Context(), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, EmbedResponse{Dimension: len(vec), Preview: vec[:min(embedPreviewLen, len(vec))]})
}
