package embeddings

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RemoteConfig configures an OpenAI-compatible embeddings endpoint.
type RemoteConfig struct {
	// BaseURL defaults to the OpenAI API. Any server speaking the
	// /embeddings protocol works (Ollama, vLLM, LiteLLM).
	BaseURL string
	Model   string
	APIKey  string

	// Dimension is required for models not in the known table.
	Dimension int
}

// RemoteProvider embeds through langchaingo's OpenAI client.
type RemoteProvider struct {
	embedder  lcembeddings.Embedder
	dimension int
}

// NewRemoteProvider builds the client. No request is made until first use.
func NewRemoteProvider(cfg RemoteConfig) (*RemoteProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embeddings.model is required for the openai provider", ragerr.ErrConfiguration)
	}

	dimension := cfg.Dimension
	if known, ok := modelDimension(cfg.Model); ok {
		dimension = known
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: unknown dimension for model %q, set vectorstore.dimension", ragerr.ErrConfiguration, cfg.Model)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for unauthenticated servers.
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
		openai.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating openai client: %v", ragerr.ErrConfiguration, err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("%w: creating embedder: %v", ragerr.ErrConfiguration, err)
	}

	return &RemoteProvider{embedder: embedder, dimension: dimension}, nil
}

func (p *RemoteProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vecs, nil
}

func (p *RemoteProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vec, nil
}

func (p *RemoteProvider) Dimension() int { return p.dimension }

func (p *RemoteProvider) Close() error { return nil }
