// Ragd serves multi-tenant hybrid retrieval over HTTP and, optionally,
// MCP on stdio.
//
// Configuration is read from an optional YAML file and RAG_* environment
// variables. A .env file in the working directory is loaded first.
//
// Usage:
//
//	# Start with defaults
//	ragd
//
//	# Use a config file and the offline hash embedder
//	RAG_EMBEDDINGS_PROVIDER=hash ragd -config ragd.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/tenantrag/internal/config"
	"github.com/fyrsmithlabs/tenantrag/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/tenantrag/internal/http"
	"github.com/fyrsmithlabs/tenantrag/internal/ingest"
	"github.com/fyrsmithlabs/tenantrag/internal/logging"
	"github.com/fyrsmithlabs/tenantrag/internal/mcp"
	"github.com/fyrsmithlabs/tenantrag/internal/metrics"
	"github.com/fyrsmithlabs/tenantrag/internal/profiles"
	"github.com/fyrsmithlabs/tenantrag/internal/rag"
	"github.com/fyrsmithlabs/tenantrag/internal/registry"
	"github.com/fyrsmithlabs/tenantrag/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before configuration")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  ragd [-config file] [-env-file file]   Start the server\n")
			fmt.Fprintf(os.Stderr, "  ragd version                           Show version information\n")
			os.Exit(1)
		}
	}

	if err := loadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "ragd: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ragd: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("ragd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// loadEnvFile loads path into the environment. A missing file is ignored;
// variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol when it is enabled.
	var logOut io.Writer = os.Stdout
	if cfg.MCP.Enabled {
		logOut = os.Stderr
	}
	logCfg, err := logging.FromObservability(cfg.Observability)
	if err != nil {
		return err
	}
	logger, err := logging.NewLoggerTo(logCfg, logOut, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zl := logger.Underlying()

	logger.Info(ctx, "starting ragd",
		zap.String("version", version),
		zap.String("base_dir", cfg.Storage.BaseDir),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("llm", cfg.LLM.Provider),
		zap.Bool("mcp", cfg.MCP.Enabled),
		logging.Secret("embeddings_api_key", cfg.Embeddings.APIKey),
	)

	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		Dimension: cfg.Embeddings.Dimension,
		CacheDir:  cfg.Embeddings.CacheDir,
		Timeout:   cfg.Embeddings.Timeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("creating embeddings provider: %w", err)
	}
	embedder := embeddings.NewGuard(provider, embeddings.GuardOptions{
		Timeout:       cfg.Embeddings.Timeout.Duration(),
		RatePerSecond: cfg.Embeddings.RatePerSecond,
		Burst:         cfg.Embeddings.Burst,
		Model:         cfg.Embeddings.Model,
		Logger:        zl.Named("embeddings"),
	})
	defer embedder.Close()

	reg, err := registry.New(registry.Options{
		BaseDir:   cfg.Storage.BaseDir,
		Embedder:  embedder,
		Dimension: embedder.Dimension(),
		Logger:    zl.Named("registry"),
		Metrics:   metrics.Default(),
		Tracer:    tel.Tracer("github.com/fyrsmithlabs/tenantrag/internal/store"),
	})
	if err != nil {
		return err
	}
	defer reg.Close()

	var dir *profiles.Directory
	if cfg.Profiles.Enabled {
		dir, err = profiles.Open(profilesPath(cfg))
		if err != nil {
			return err
		}
		defer dir.Close()
	}

	completer, err := newCompleter(cfg.LLM)
	if err != nil {
		return err
	}
	pipeline := rag.NewPipeline(reg, completer, cfg.Search.K, cfg.Search.Alpha, zl.Named("rag"))

	splitter, err := ingest.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return err
	}

	srv, err := httpserver.NewServer(httpserver.Options{
		Registry:  reg,
		Profiles:  dir,
		Pipeline:  pipeline,
		Splitter:  splitter,
		Telemetry: tel,
		Metrics:   httpserver.NewHTTPMetrics(zl),
	}, logger, &httpserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout.Duration(),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		K:              cfg.Search.K,
		Alpha:          cfg.Search.Alpha,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	if cfg.MCP.Enabled {
		mcpSrv, err := mcp.NewServer(&mcp.Config{
			Name:    "tenantrag",
			Version: version,
			Logger:  zl.Named("mcp"),
			K:       cfg.Search.K,
			Alpha:   cfg.Search.Alpha,
		}, reg, pipeline)
		if err != nil {
			return err
		}
		g.Go(func() error { return mcpSrv.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if terr := tel.Shutdown(shutdownCtx); terr != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(terr))
		}
		return err
	})

	err = g.Wait()
	logger.Info(context.Background(), "ragd stopped", zap.Error(err))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// profilesPath defaults the profile database into the storage root.
func profilesPath(cfg *config.Config) string {
	if cfg.Profiles.Path != "" {
		return cfg.Profiles.Path
	}
	return filepath.Join(cfg.Storage.BaseDir, profiles.DefaultFileName)
}

// newCompleter returns nil when answering is disabled.
func newCompleter(cfg config.LLMConfig) (rag.Completer, error) {
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "openai":
		c, err := rag.NewOpenAICompleter(rag.CompleterConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey.Value(),
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout.Duration(),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
