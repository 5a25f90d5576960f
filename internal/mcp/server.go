package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/rag"
	"github.com/fyrsmithlabs/tenantrag/internal/registry"
)

// Server registers the tenant tools on an MCP server.
type Server struct {
	mcp          *mcp.Server
	registry     *registry.Registry
	pipeline     *rag.Pipeline
	toolRegistry *ToolRegistry
	metrics      *Metrics
	logger       *zap.Logger
	k            int
	alpha        float64
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "tenantrag")
	Name string

	// Version is the server version (default: "0.1.0")
	Version string

	Logger *zap.Logger

	// K and Alpha apply when a tool call leaves them unset.
	K     int
	Alpha float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "tenantrag",
		Version: "0.1.0",
		Logger:  zap.NewNop(),
		K:       rag.DefaultK,
		Alpha:   rag.DefaultAlpha,
	}
}

// NewServer creates an MCP server over reg. pipeline is optional; without
// it tenant_ask is not registered.
func NewServer(cfg *Config, reg *registry.Registry, pipeline *rag.Pipeline) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "tenantrag"
	}
	if cfg.K <= 0 {
		cfg.K = rag.DefaultK
	}
	if cfg.Alpha < 0 || cfg.Alpha > 1 {
		cfg.Alpha = rag.DefaultAlpha
	}

	s := &Server{
		mcp:          mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		registry:     reg,
		pipeline:     pipeline,
		toolRegistry: NewToolRegistry(),
		metrics:      NewMetrics(cfg.Logger),
		logger:       cfg.Logger,
		k:            cfg.K,
		alpha:        cfg.Alpha,
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Tools returns the metadata of every registered tool.
func (s *Server) Tools() *ToolRegistry {
	return s.toolRegistry
}
