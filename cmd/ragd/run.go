package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/auth"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/events"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	httpserver "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/mcp"
	"github.com/fyrsmithlabs/ragd/internal/pipeline"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/secrets"
	"github.com/fyrsmithlabs/ragd/internal/segment"
	"github.com/fyrsmithlabs/ragd/internal/synthesis"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type runMode int

const (
	modeHTTP runMode = iota
	modeMCP
)

// run loads configuration, wires the service and blocks until ctx is
// cancelled or the server fails.
func run(ctx context.Context, configPath string, mode runMode) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := initLogger(cfg, mode == modeMCP)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
	}()
	if err := tel.Degraded(); err != nil {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(err))
	}

	logger.Info(ctx, "starting ragd",
		zap.String("version", version),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("generation", cfg.Generation.Provider))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer a.Close()

	if mode == modeMCP {
		srv, err := mcp.NewServer(&mcp.Config{Name: "ragd", Version: version, Logger: logger}, a.ingestor, a.responder)
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	}

	srv, err := a.httpServer()
	if err != nil {
		return err
	}
	return serve(ctx, srv, cfg.Server.ShutdownTimeout.Duration(), logger)
}

// serve runs srv until ctx is done, then shuts it down within timeout.
func serve(ctx context.Context, srv *httpserver.Server, timeout time.Duration, logger *logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(ctx, "received shutdown signal, shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}

// initLogger builds the structured logger. In MCP mode stdout carries the
// protocol, so logs go to stderr.
func initLogger(cfg *config.Config, stdio bool) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	lc.Fields["version"] = version
	if stdio {
		lc.Output = logging.OutputConfig{Stderr: true}
	}
	return logging.NewLogger(lc, nil)
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.SampleRate = cfg.Telemetry.SampleRate
	tc.ServiceVersion = version
	if cfg.Telemetry.ServiceName != "" {
		tc.ServiceName = cfg.Telemetry.ServiceName
	}
	return tc
}

// app holds the wired service graph.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	store     vectorstore.Store
	provider  embeddings.Provider
	publisher events.Publisher
	redactor  *secrets.Redactor
	verifier  auth.Verifier
	extractor *extract.Registry
	ingestor  *pipeline.Ingestor
	responder *pipeline.Responder
}

// newApp creates every dependency. Backends that are down at startup leave
// the service running degraded; configuration errors abort.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, publisher: events.Nop{}}

	var err error
	a.store, err = vectorstore.New(vectorstore.Config{
		Provider: cfg.VectorStore.Provider,
		Qdrant: vectorstore.QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			Collection:     cfg.VectorStore.Collection,
			Dimension:      cfg.VectorStore.Dimension,
			UseTLS:         cfg.Qdrant.UseTLS,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			MaxRetries:     cfg.Qdrant.MaxRetries,
			RetryBackoff:   cfg.Qdrant.RetryBackoff.Duration(),
			MaxMessageSize: cfg.Qdrant.MaxMessageSize,
		},
		Chromem: vectorstore.ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.VectorStore.Collection,
			Dimension:  cfg.VectorStore.Dimension,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	if err := a.store.EnsureCollection(ctx); err != nil {
		if ragerr.Is(err, ragerr.KindConfiguration) {
			a.Close()
			return nil, fmt.Errorf("vector store collection: %w", err)
		}
		logger.Warn(ctx, "vector store not ready, retrying on first ingest", zap.Error(err))
	}

	a.provider, err = embeddings.Resolve(ctx, embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		CacheDir:  cfg.Embeddings.CacheDir,
		Dimension: cfg.VectorStore.Dimension,
		Timeout:   cfg.Embeddings.Timeout.Duration(),
	}, cfg.Embeddings.Required, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	gen, err := synthesis.ResolveGenerator(ctx, synthesis.GeneratorConfig{
		Provider:          cfg.Generation.Provider,
		Model:             cfg.Generation.Model,
		BaseURL:           cfg.Generation.BaseURL,
		APIKey:            cfg.Generation.APIKey.Value(),
		Temperature:       cfg.Generation.Temperature,
		MaxTokens:         cfg.Generation.MaxTokens,
		Timeout:           cfg.Generation.Timeout.Duration(),
		RequestsPerSecond: cfg.Generation.RequestsPerSecond,
		Burst:             cfg.Generation.Burst,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	synth := synthesis.New(gen, logger)

	retriever, err := retrieval.New(cfg.Retrieval.Mode, a.store, cfg.VectorStore.Dimension, cfg.Retrieval.PoolSize)
	if err != nil {
		a.Close()
		return nil, err
	}

	seg, err := segment.New(cfg.Segment.ChunkSize, cfg.Segment.Overlap)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Secrets.Redact {
		a.redactor, err = secrets.New(cfg.Secrets.AllowlistPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create secret redactor: %w", err)
		}
	}

	if cfg.Events.Enabled {
		pub, err := events.Connect(cfg.Events.URL, cfg.Events.SubjectPrefix)
		if err != nil {
			logger.Warn(ctx, "event publishing disabled, NATS unreachable",
				zap.String("url", cfg.Events.URL), zap.Error(err))
		} else {
			a.publisher = pub
			logger.Info(ctx, "publishing events to NATS", zap.String("url", cfg.Events.URL))
		}
	}

	if cfg.Auth.IdentityURL != "" {
		a.verifier, err = auth.NewRemoteVerifier(cfg.Auth.IdentityURL, cfg.Auth.APIKey.Value(), cfg.Auth.Timeout.Duration())
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.extractor = extract.New(cfg.Server.MaxUploadBytes)

	opts := []pipeline.IngestorOption{
		pipeline.WithSummarizer(synth),
		pipeline.WithPublisher(a.publisher),
		pipeline.WithLogger(logger),
	}
	if a.redactor != nil {
		opts = append(opts, pipeline.WithRedactor(a.redactor))
	}
	a.ingestor = pipeline.NewIngestor(pipeline.IngestConfig{
		MinTextLength:     cfg.Ingest.MinTextLength,
		Parallelism:       cfg.Embeddings.Parallelism,
		SummarizeOnIngest: cfg.Ingest.SummarizeOnIngest,
		SummaryLength:     cfg.Ingest.SummaryLength,
	}, seg, a.provider, a.store, opts...)

	a.responder = pipeline.NewResponder(pipeline.QueryConfig{
		MinLength:    cfg.Query.MinLength,
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
	}, a.provider, retriever, synth, logger)

	return a, nil
}

func (a *app) httpServer() (*httpserver.Server, error) {
	mode, err := auth.ParseMode(a.cfg.Auth.Mode)
	if err != nil {
		return nil, err
	}
	return httpserver.NewServer(httpserver.Services{
		Ingestor:  a.ingestor,
		Responder: a.responder,
		Provider:  a.provider,
		Store:     a.store,
		Extractor: a.extractor,
		Redactor:  a.redactor,
		Verifier:  a.verifier,
	}, a.logger, &httpserver.Config{
		Host:           a.cfg.Server.Host,
		Port:           a.cfg.Server.Port,
		MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
		EnableDebug:    a.cfg.Server.EnableDebug,
		AuthMode:       mode,
		ChunkSize:      a.cfg.Segment.ChunkSize,
		Overlap:        a.cfg.Segment.Overlap,
		Version:        version,
	})
}

// Close releases every backend. Errors are logged, not returned.
func (a *app) Close() {
	ctx := context.Background()
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.provider != nil {
		errs = append(errs, a.provider.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn(ctx, "error releasing resources", zap.Error(err))
	}
}
