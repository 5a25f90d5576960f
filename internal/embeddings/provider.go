package embeddings

import (
	"fmt"
	"strings"
	"time"
)

// DefaultModel matches the model the tenant indexes were first built with.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is one of "fastembed", "tei", "openai" or "hash".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the TEI or OpenAI-compatible endpoint.
	BaseURL string
	// APIKey is used by the openai provider.
	APIKey string
	// Dimension overrides model-based dimension detection.
	Dimension int
	// CacheDir is the model cache directory (fastembed only).
	CacheDir string
	// BatchSize is the passage batch size (fastembed only).
	BatchSize int
	// Timeout bounds every HTTP round trip (tei, openai).
	Timeout time.Duration
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownModelDimensions[model]; ok {
		return dim
	}
	switch {
	case strings.Contains(model, "3-large"):
		return 3072
	case strings.Contains(model, "3-small"), strings.Contains(model, "ada-002"):
		return 1536
	case strings.Contains(model, "base"):
		return 768
	case strings.Contains(model, "large"):
		return 1024
	default:
		return 384
	}
}

// knownModelDimensions covers the sentence-transformer family used locally.
var knownModelDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-all-MiniLM-L6-v2":                  384,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = detectDimensionFromModel(cfg.Model)
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "fastembed", "":
		var fe *FastEmbedProvider
		fe, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			BatchSize: cfg.BatchSize,
		})
		if err == nil {
			p = fe
		}
	case "tei":
		var tei *TEIProvider
		tei, err = NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: dim,
			Timeout:   cfg.Timeout,
		})
		if err == nil {
			p = tei
		}
	case "openai":
		var oa *OpenAIProvider
		oa, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
		if err == nil {
			p = oa
		}
	case "hash":
		p = NewHashProvider(dim)
	default:
		err = fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
