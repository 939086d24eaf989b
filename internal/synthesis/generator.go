package synthesis

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// geminiOpenAIURL is Gemini's OpenAI-compatible endpoint.
const geminiOpenAIURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorConfig selects and configures a generation backend.
type GeneratorConfig struct {
	// Provider is one of gemini, openai, ollama or none.
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int

	// Timeout bounds a single Generate call.
	Timeout time.Duration

	// RequestsPerSecond and Burst configure the outgoing rate limit.
	// RequestsPerSecond <= 0 disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// LLMGenerator calls a langchaingo model.
type LLMGenerator struct {
	llm         llms.Model
	limiter     *rate.Limiter
	timeout     time.Duration
	temperature float64
	maxTokens   int
}

// NewLLMGenerator wraps model with rate limiting and a per-call timeout.
func NewLLMGenerator(model llms.Model, cfg GeneratorConfig) *LLMGenerator {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &LLMGenerator{
		llm:         model,
		limiter:     rate.NewLimiter(limit, burst),
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Generate waits for the rate limiter, then calls the model.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %w", ragerr.ErrGenerationFailed, err)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ragerr.ErrGenerationFailed, err)
	}
	return out, nil
}

// Unavailable is the generator used when no backend is configured. Every
// call fails, which the Synthesizer turns into its fallback answer.
type Unavailable struct {
	reason string
}

// NewUnavailable returns a generator that always fails with reason.
func NewUnavailable(reason string) *Unavailable {
	return &Unavailable{reason: reason}
}

func (u *Unavailable) Generate(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %s", ragerr.ErrGenerationFailed, u.reason)
}

// Reason explains why generation is unavailable.
func (u *Unavailable) Reason() string { return u.reason }

// NewGenerator creates the configured backend. Missing credentials are an
// error; ResolveGenerator downgrades them to Unavailable.
func NewGenerator(cfg GeneratorConfig) (Generator, error) {
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	var (
		model llms.Model
		err   error
	)

	switch strings.ToLower(cfg.Provider) {
	case "gemini", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: generation.api_key not set", ragerr.ErrGenerationFailed)
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = geminiOpenAIURL
		}
		model, err = openai.New(
			openai.WithBaseURL(baseURL),
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey),
			openai.WithHTTPClient(httpClient),
		)
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: generation.api_key not set", ragerr.ErrGenerationFailed)
		}
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey),
			openai.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	case "none":
		return NewUnavailable("generation disabled"), nil
	default:
		return nil, fmt.Errorf("%w: unsupported generation provider %q (supported: gemini, openai, ollama, none)", ragerr.ErrConfiguration, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s client: %w", ragerr.ErrGenerationFailed, cfg.Provider, err)
	}

	return NewLLMGenerator(model, cfg), nil
}

// ResolveGenerator creates the configured backend, falling back to
// Unavailable for anything but a configuration error.
func ResolveGenerator(ctx context.Context, cfg GeneratorConfig, logger *logging.Logger) (Generator, error) {
	g, err := NewGenerator(cfg)
	if err == nil {
		return g, nil
	}
	if ragerr.Is(err, ragerr.KindConfiguration) {
		return nil, err
	}

	if logger != nil {
		logger.Warn(ctx, "generation backend unavailable, answers will use the fallback",
			zap.String("provider", cfg.Provider),
			zap.String("model", cfg.Model),
			zap.Error(err))
	}
	return NewUnavailable(err.Error()), nil
}
