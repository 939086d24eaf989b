package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// errNoTenant is returned by tenant-scoped commands without credentials.
var errNoTenant = errors.New("no tenant: pass --tenant or --token")

// client talks to one ragd server.
type client struct {
	baseURL  string
	tenantID string
	token    string
	http     *http.Client
}

func newClient(timeout time.Duration) *client {
	return &client{
		baseURL:  strings.TrimSuffix(serverURL, "/"),
		tenantID: tenantID,
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}
}

// apiError is a non-2xx response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// do sends a request and decodes a JSON response into out, which may be nil.
func (c *client) do(ctx context.Context, method, path string, body io.Reader, contentType string, tenanted bool, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tenanted {
		switch {
		case c.token != "":
			req.Header.Set("Authorization", "Bearer "+c.token)
		case c.tenantID != "":
			req.Header.Set("X-Tenant-ID", c.tenantID)
		default:
			return errNoTenant
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", true, out)
}

// upload sends a file to the multipart upload endpoint.
func (c *client) upload(ctx context.Context, path, documentID string) (ingestResponse, error) {
	var out ingestResponse

	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return out, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return out, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if documentID != "" {
		if err := w.WriteField("document_id", documentID); err != nil {
			return out, err
		}
	}
	if err := w.Close(); err != nil {
		return out, err
	}

	err = c.do(ctx, http.MethodPost, "/api/v1/documents/upload", &buf, w.FormDataContentType(), true, &out)
	return out, err
}

// Response types mirror the server's JSON bodies.

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

type ingestResponse struct {
	Message          string `json:"message"`
	Filename         string `json:"filename,omitempty"`
	DocumentID       string `json:"document_id"`
	FragmentsTotal   int    `json:"fragments_total"`
	FragmentsStored  int    `json:"fragments_stored"`
	FragmentsFailed  int    `json:"fragments_failed"`
	FragmentsSkipped int    `json:"fragments_skipped"`
	Partial          bool   `json:"partial"`
	Redactions       int    `json:"redactions,omitempty"`
	Summary          string `json:"summary,omitempty"`
}

type queryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type hit struct {
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

type searchResponse struct {
	Query string `json:"query"`
	Hits  []hit  `json:"hits"`
	Count int    `json:"count"`
}

type queryResponse struct {
	Query     string `json:"query"`
	Answer    string `json:"answer"`
	Generated bool   `json:"generated"`
	Sources   []hit  `json:"sources"`
}

type deleteResponse struct {
	Message    string `json:"message"`
	TenantID   string `json:"tenant_id"`
	DocumentID string `json:"document_id,omitempty"`
}

type statsResponse struct {
	TenantID  string `json:"tenant_id"`
	Fragments int    `json:"fragments"`
}

type redactRequest struct {
	Content string `json:"content"`
}

type redactResponse struct {
	Content       string   `json:"content"`
	FindingsCount int      `json:"findings_count"`
	Rules         []string `json:"rules,omitempty"`
}
