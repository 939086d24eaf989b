// Package config provides configuration loading for ragd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// Config is the complete ragd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Auth        AuthConfig        `koanf:"auth"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	Chromem     ChromemConfig     `koanf:"chromem"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Generation  GenerationConfig  `koanf:"generation"`
	Segment     SegmentConfig     `koanf:"segment"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Query       QueryConfig       `koanf:"query"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Secrets     SecretsConfig     `koanf:"secrets"`
	Events      EventsConfig      `koanf:"events"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	MaxUploadBytes  int64    `koanf:"max_upload_bytes"`
	EnableDebug     bool     `koanf:"enable_debug"`
}

// AuthConfig controls how the tenant of a request is resolved.
//
// Modes:
//   - header: X-Tenant-ID is required
//   - bearer: Authorization bearer token verified against IdentityURL
//   - flexible: bearer token first, then X-Tenant-ID
type AuthConfig struct {
	Mode        string   `koanf:"mode"`
	IdentityURL string   `koanf:"identity_url"`
	APIKey      Secret   `koanf:"api_key"`
	Timeout     Duration `koanf:"timeout"`
}

// VectorStoreConfig selects the vector store backend.
type VectorStoreConfig struct {
	Provider   string `koanf:"provider"` // qdrant or chromem
	Collection string `koanf:"collection"`
	Dimension  int    `koanf:"dimension"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	UseTLS         bool     `koanf:"use_tls"`
	APIKey         Secret   `koanf:"api_key"`
	MaxRetries     int      `koanf:"max_retries"`
	RetryBackoff   Duration `koanf:"retry_backoff"`
	MaxMessageSize int      `koanf:"max_message_size"`
}

// ChromemConfig holds embedded store settings. An empty Path keeps data in memory.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// EmbeddingsConfig selects the embedding backend.
type EmbeddingsConfig struct {
	Provider    string   `koanf:"provider"` // fastembed, openai, tei or none
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	CacheDir    string   `koanf:"cache_dir"`
	Parallelism int      `koanf:"parallelism"`
	Timeout     Duration `koanf:"timeout"`
	// Required makes startup fail when the backend cannot be created.
	// Otherwise the service starts with embeddings unavailable.
	Required bool `koanf:"required"`
}

// GenerationConfig selects the answer generation backend.
type GenerationConfig struct {
	Provider          string   `koanf:"provider"` // openai, gemini, ollama or none
	Model             string   `koanf:"model"`
	BaseURL           string   `koanf:"base_url"`
	APIKey            Secret   `koanf:"api_key"`
	Temperature       float64  `koanf:"temperature"`
	MaxTokens         int      `koanf:"max_tokens"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	Burst             int      `koanf:"burst"`
}

// SegmentConfig holds the fragment window, in characters.
type SegmentConfig struct {
	ChunkSize int `koanf:"chunk_size"`
	Overlap   int `koanf:"overlap"`
}

// IngestConfig holds ingestion limits.
type IngestConfig struct {
	MinTextLength     int  `koanf:"min_text_length"`
	SummarizeOnIngest bool `koanf:"summarize_on_ingest"`
	SummaryLength     int  `koanf:"summary_length"`
}

// QueryConfig holds query limits.
type QueryConfig struct {
	MinLength    int `koanf:"min_length"`
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`
}

// RetrievalConfig selects the ranking strategy.
type RetrievalConfig struct {
	Mode     string `koanf:"mode"` // exact or native
	PoolSize int    `koanf:"pool_size"`
}

// SecretsConfig controls secret redaction of ingested text.
type SecretsConfig struct {
	Redact        bool   `koanf:"redact"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// EventsConfig controls NATS event publishing.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
	ServiceName string  `koanf:"service_name"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
			MaxUploadBytes:  10 << 20,
		},
		Auth: AuthConfig{
			Mode:    "flexible",
			Timeout: Duration(5 * time.Second),
		},
		VectorStore: VectorStoreConfig{
			Provider:   "qdrant",
			Collection: "document_chunks",
			Dimension:  384,
		},
		Qdrant: QdrantConfig{
			Host:           "localhost",
			Port:           6334,
			MaxRetries:     3,
			RetryBackoff:   Duration(time.Second),
			MaxMessageSize: 50 * 1024 * 1024,
		},
		Embeddings: EmbeddingsConfig{
			Provider:    "fastembed",
			Model:       "sentence-transformers/all-MiniLM-L6-v2",
			Parallelism: 4,
			Timeout:     Duration(30 * time.Second),
		},
		Generation: GenerationConfig{
			Provider:          "gemini",
			Model:             "gemini-2.0-flash",
			Temperature:       0.2,
			MaxTokens:         1024,
			Timeout:           Duration(30 * time.Second),
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Segment: SegmentConfig{
			ChunkSize: 2000,
			Overlap:   300,
		},
		Ingest: IngestConfig{
			MinTextLength: 50,
			SummaryLength: 200,
		},
		Query: QueryConfig{
			MinLength:    3,
			DefaultLimit: 5,
			MaxLimit:     50,
		},
		Retrieval: RetrievalConfig{
			Mode:     "exact",
			PoolSize: 100,
		},
		Secrets: SecretsConfig{
			Redact: true,
		},
		Events: EventsConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "ragd",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			SampleRate:  1.0,
			ServiceName: "ragd",
		},
	}
}

// Validate checks the configuration. Errors wrap ragerr.ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ragerr.ErrConfiguration, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	switch c.Auth.Mode {
	case "header":
	case "bearer", "flexible":
		if c.Auth.Mode == "bearer" && c.Auth.IdentityURL == "" {
			return fmt.Errorf("auth.identity_url is required in bearer mode")
		}
	default:
		return fmt.Errorf("auth.mode must be header, bearer or flexible, got %q", c.Auth.Mode)
	}

	switch c.VectorStore.Provider {
	case "qdrant":
		if c.Qdrant.Host == "" {
			return fmt.Errorf("qdrant.host is required")
		}
		if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
			return fmt.Errorf("qdrant.port must be between 1 and 65535, got %d", c.Qdrant.Port)
		}
	case "chromem":
	default:
		return fmt.Errorf("vectorstore.provider must be qdrant or chromem, got %q", c.VectorStore.Provider)
	}
	if c.VectorStore.Collection == "" {
		return fmt.Errorf("vectorstore.collection is required")
	}
	if c.VectorStore.Dimension <= 0 {
		return fmt.Errorf("vectorstore.dimension must be positive, got %d", c.VectorStore.Dimension)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "openai", "tei", "none":
	default:
		return fmt.Errorf("embeddings.provider must be fastembed, openai, tei or none, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Parallelism < 1 {
		return fmt.Errorf("embeddings.parallelism must be at least 1, got %d", c.Embeddings.Parallelism)
	}

	switch c.Generation.Provider {
	case "openai", "gemini", "ollama", "none":
	default:
		return fmt.Errorf("generation.provider must be openai, gemini, ollama or none, got %q", c.Generation.Provider)
	}

	if c.Segment.ChunkSize <= 0 {
		return fmt.Errorf("segment.chunk_size must be positive, got %d", c.Segment.ChunkSize)
	}
	if c.Segment.Overlap < 0 || c.Segment.Overlap >= c.Segment.ChunkSize {
		return fmt.Errorf("segment.overlap must be in [0, chunk_size), got %d", c.Segment.Overlap)
	}

	if c.Ingest.MinTextLength < 0 {
		return fmt.Errorf("ingest.min_text_length must not be negative")
	}
	if c.Query.MinLength < 0 {
		return fmt.Errorf("query.min_length must not be negative")
	}
	if c.Query.DefaultLimit < 1 || c.Query.MaxLimit < c.Query.DefaultLimit {
		return fmt.Errorf("query limits invalid: default_limit=%d max_limit=%d", c.Query.DefaultLimit, c.Query.MaxLimit)
	}

	switch c.Retrieval.Mode {
	case "exact", "native":
	default:
		return fmt.Errorf("retrieval.mode must be exact or native, got %q", c.Retrieval.Mode)
	}
	if c.Retrieval.PoolSize < 1 {
		return fmt.Errorf("retrieval.pool_size must be positive, got %d", c.Retrieval.PoolSize)
	}

	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events.url is required when events are enabled")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}

	return nil
}
