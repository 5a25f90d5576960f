// Package config provides configuration loading for tenantrag.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Storage       StorageConfig       `koanf:"storage"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	LLM           LLMConfig           `koanf:"llm"`
	Search        SearchConfig        `koanf:"search"`
	Ingest        IngestConfig        `koanf:"ingest"`
	Profiles      ProfilesConfig      `koanf:"profiles"`
	MCP           MCPConfig           `koanf:"mcp"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RequestTimeout  Duration `koanf:"request_timeout"`
	MaxUploadBytes  int64    `koanf:"max_upload_bytes"`
}

// StorageConfig locates tenant stores on disk.
type StorageConfig struct {
	// BaseDir holds one directory per domain, each with one directory per
	// organization/user pair.
	BaseDir string `koanf:"base_dir"`
}

// EmbeddingsConfig selects and bounds the embedding backend.
type EmbeddingsConfig struct {
	Provider      string   `koanf:"provider"` // fastembed, tei, openai, hash
	Model         string   `koanf:"model"`
	BaseURL       string   `koanf:"base_url"`
	APIKey        Secret   `koanf:"api_key"`
	Dimension     int      `koanf:"dimension"`
	CacheDir      string   `koanf:"cache_dir"`
	Timeout       Duration `koanf:"timeout"`
	RatePerSecond float64  `koanf:"rate_per_second"`
	Burst         int      `koanf:"burst"`
}

// LLMConfig configures the completion engine used by the answer pipeline.
type LLMConfig struct {
	Provider    string   `koanf:"provider"` // openai or none
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	Model       string   `koanf:"model"`
	Temperature float64  `koanf:"temperature"`
	Timeout     Duration `koanf:"timeout"`
}

// SearchConfig holds retrieval defaults.
type SearchConfig struct {
	K     int     `koanf:"k"`
	Alpha float64 `koanf:"alpha"`
}

// IngestConfig holds file splitting parameters.
type IngestConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// ProfilesConfig locates the tenant profile directory.
type ProfilesConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// MCPConfig toggles the stdio MCP tool surface.
type MCPConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ObservabilityConfig holds logging and telemetry settings.
type ObservabilityConfig struct {
	ServiceName     string  `koanf:"service_name"`
	LogLevel        string  `koanf:"log_level"`
	LogFormat       string  `koanf:"log_format"`
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPProtocol    string  `koanf:"otlp_protocol"`
	OTLPInsecure    bool    `koanf:"otlp_insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
}

// Default returns configuration with every default applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
			RequestTimeout:  Duration(60 * time.Second),
			MaxUploadBytes:  10 << 20,
		},
		Storage: StorageConfig{
			BaseDir: "rag_data",
		},
		Embeddings: EmbeddingsConfig{
			Provider: "fastembed",
			Model:    "sentence-transformers/all-MiniLM-L6-v2",
			Timeout:  Duration(30 * time.Second),
			Burst:    1,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			Timeout:     Duration(60 * time.Second),
		},
		Search: SearchConfig{
			K:     3,
			Alpha: 0.5,
		},
		Ingest: IngestConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Profiles: ProfilesConfig{
			Enabled: true,
		},
		Observability: ObservabilityConfig{
			ServiceName:  "tenantrag",
			LogLevel:     "info",
			LogFormat:    "json",
			OTLPEndpoint: "localhost:4317",
			OTLPProtocol: "grpc",
			OTLPInsecure: true,
			SamplingRate: 1.0,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Storage.BaseDir == "" {
		errs = append(errs, errors.New("storage.base_dir is required"))
	}

	switch c.Embeddings.Provider {
	case "fastembed", "hash":
	case "tei":
		if c.Embeddings.BaseURL == "" {
			errs = append(errs, errors.New("embeddings.base_url is required for tei"))
		}
	case "openai":
		if !c.Embeddings.APIKey.IsSet() && c.Embeddings.BaseURL == "" {
			errs = append(errs, errors.New("embeddings.api_key or embeddings.base_url is required for openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider %q is not supported", c.Embeddings.Provider))
	}
	if c.Embeddings.Timeout.Duration() <= 0 {
		errs = append(errs, errors.New("embeddings.timeout must be positive"))
	}
	if c.Embeddings.RatePerSecond < 0 {
		errs = append(errs, errors.New("embeddings.rate_per_second cannot be negative"))
	}

	switch c.LLM.Provider {
	case "openai", "none":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}

	if c.Search.K <= 0 {
		errs = append(errs, fmt.Errorf("search.k must be positive, got %d", c.Search.K))
	}
	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		errs = append(errs, fmt.Errorf("search.alpha must be between 0 and 1, got %v", c.Search.Alpha))
	}

	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, errors.New("ingest.chunk_size must be positive"))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, errors.New("ingest.chunk_overlap must be in [0, chunk_size)"))
	}

	if r := c.Observability.SamplingRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("observability.sampling_rate must be between 0 and 1, got %v", r))
	}

	return errors.Join(errs...)
}
