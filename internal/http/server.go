// Package http provides the ragd HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/auth"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/pipeline"
	"github.com/fyrsmithlabs/ragd/internal/secrets"
	"github.com/fyrsmithlabs/ragd/internal/segment"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Server provides HTTP endpoints for ragd.
type Server struct {
	echo    *echo.Echo
	http    *http.Server
	svc     Services
	logger  *logging.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	MaxUploadBytes int64
	EnableDebug    bool
	AuthMode       auth.Mode
	// ChunkSize and Overlap are the defaults of the segment debug endpoint.
	ChunkSize int
	Overlap   int
	Version   string
}

// Services are the collaborators behind the endpoints. Redactor and
// Verifier are optional.
type Services struct {
	Ingestor  *pipeline.Ingestor
	Responder *pipeline.Responder
	Provider  embeddings.Provider
	Store     vectorstore.Store
	Extractor *extract.Registry
	Redactor  *secrets.Redactor
	Verifier  auth.Verifier
}

// NewServer creates a new HTTP server.
func NewServer(svc Services, logger *logging.Logger, cfg *Config) (*Server, error) {
	if svc.Ingestor == nil || svc.Responder == nil || svc.Store == nil || svc.Provider == nil {
		return nil, fmt.Errorf("ingestor, responder, store and provider are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8000}
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = auth.ModeFlexible
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize, cfg.Overlap = segment.DefaultSize, segment.DefaultOverlap
	}
	if svc.Extractor == nil {
		svc.Extractor = extract.New(cfg.MaxUploadBytes)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger.Underlying()),
	}
	e.HTTPErrorHandler = s.handleError

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", (s.svc.Extractor.MaxBytes()>>10)+64)))
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler set the final status before logging.
				c.Error(err)
			}

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s.registerRoutes()

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           otelhttp.NewHandler(e, "ragd.http"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	if s.config.EnableDebug {
		debug := v1.Group("/debug")
		debug.POST("/segment", s.handleSegment)
		debug.POST("/embed", s.handleEmbed)
	}

	tenanted := v1.Group("", auth.Middleware(s.config.AuthMode, s.svc.Verifier, s.logger))
	tenanted.GET("/whoami", s.handleWhoAmI)
	tenanted.GET("/stats", s.handleStats)
	tenanted.POST("/documents", s.handleIngest)
	tenanted.POST("/documents/upload", s.handleUpload)
	tenanted.DELETE("/documents", s.handleDeletePartition)
	tenanted.DELETE("/documents/:id", s.handleDeleteDocument)
	tenanted.POST("/search", s.handleSearch)
	tenanted.POST("/query", s.handleQuery)
	if s.svc.Redactor != nil {
		tenanted.POST("/redact", s.handleRedact)
	}
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.http.Shutdown(ctx)
}
