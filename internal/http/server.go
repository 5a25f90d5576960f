// Package http serves the tenant retrieval API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/ingest"
	"github.com/fyrsmithlabs/tenantrag/internal/logging"
	"github.com/fyrsmithlabs/tenantrag/internal/profiles"
	"github.com/fyrsmithlabs/tenantrag/internal/rag"
	"github.com/fyrsmithlabs/tenantrag/internal/registry"
	"github.com/fyrsmithlabs/tenantrag/internal/telemetry"
)

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxUploadBytes int64
	// K and Alpha are used when a request leaves them unset.
	K     int
	Alpha float64
}

// Options carries the server's collaborators. Registry is required.
type Options struct {
	Registry  *registry.Registry
	Profiles  *profiles.Directory
	Pipeline  *rag.Pipeline
	Splitter  *ingest.Splitter
	Telemetry *telemetry.Telemetry
	// Gatherer backs /metrics. Defaults to the prometheus default gatherer.
	Gatherer prometheus.Gatherer
	// Metrics records OpenTelemetry request metrics when set.
	Metrics *HTTPMetrics
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	opts   Options
	logger *logging.Logger
	config *Config
}

// NewServer creates a new HTTP server.
func NewServer(opts Options, logger *logging.Logger, cfg *Config) (*Server, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8000}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.K <= 0 {
		cfg.K = rag.DefaultK
	}
	if cfg.Alpha < 0 || cfg.Alpha > 1 {
		cfg.Alpha = rag.DefaultAlpha
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Splitter == nil {
		sp, err := ingest.NewSplitter(ingest.DefaultChunkSize, ingest.DefaultChunkOverlap)
		if err != nil {
			return nil, err
		}
		opts.Splitter = sp
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := logging.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
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
	if cfg.RequestTimeout > 0 {
		e.Use(timeoutMiddleware(cfg.RequestTimeout))
	}
	if opts.Metrics != nil {
		e.Use(opts.Metrics.MetricsMiddleware())
	}

	s := &Server{
		echo:   e,
		opts:   opts,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tenants/register", s.handleRegister)
	v1.POST("/ingest", s.handleIngest)
	v1.POST("/upload", s.handleUpload)
	v1.POST("/search", s.handleSearch)
	v1.POST("/fanout", s.handleFanOut)
	v1.POST("/ask", s.handleAsk)
	v1.PUT("/answers", s.handleUpdateAnswer)
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

func timeoutMiddleware(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
