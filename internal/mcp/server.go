package mcp

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server is an MCP server backed by the ingestion and query pipelines.
type Server struct {
	mcp       *mcp.Server
	ingestor  *pipeline.Ingestor
	responder *pipeline.Responder
	metrics   *Metrics
	logger    *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "ragd")
	Name string

	// Version is the server version (default: "dev")
	Version string

	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ragd",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates a new MCP server with the given services.
func NewServer(cfg *Config, ingestor *pipeline.Ingestor, responder *pipeline.Responder) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor is required")
	}
	if responder == nil {
		return nil, fmt.Errorf("responder is required")
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		ingestor:  ingestor,
		responder: responder,
		metrics:   NewMetrics(cfg.Logger.Underlying()),
		logger:    cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// MCPServer returns the underlying SDK server, for custom transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}
