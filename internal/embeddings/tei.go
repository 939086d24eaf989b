package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TEIConfig configures a Text Embeddings Inference server.
type TEIConfig struct {
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// TEIProvider calls the TEI /embed endpoint.
type TEIProvider struct {
	baseURL   string
	dimension int
	client    *http.Client
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   any  `json:"inputs"`
	Truncate bool `json:"truncate"`
}

// NewTEIProvider validates the configuration. No request is made until
// first use.
func NewTEIProvider(cfg TEIConfig) (*TEIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: embeddings.base_url is required for the tei provider", ragerr.ErrConfiguration)
	}

	dimension := cfg.Dimension
	if known, ok := modelDimension(cfg.Model); ok {
		dimension = known
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: unknown dimension for model %q, set vectorstore.dimension", ragerr.ErrConfiguration, cfg.Model)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &TEIProvider{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		dimension: dimension,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed(ctx, texts)
}

func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("tei: empty response")
	}
	return vecs[0], nil
}

func (p *TEIProvider) Dimension() int { return p.dimension }

func (p *TEIProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func (p *TEIProvider) embed(ctx context.Context, inputs any) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tei request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tei: status %d: %s", resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding tei response: %w", err)
	}
	return vectors, nil
}
