// Package main implements ragctl, a CLI operating directly on a local
// tenant storage directory.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/config"
	"github.com/fyrsmithlabs/tenantrag/internal/embeddings"
	"github.com/fyrsmithlabs/tenantrag/internal/registry"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	baseDir    string
	embedder   string
	org        string
	user       string
	domain     string
	asJSON     bool
}

func (o *options) key() tenant.Key {
	return tenant.NewKey(o.org, o.user, o.domain)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "ragctl",
		Short: "Operate on a local tenant retrieval store",
		Long: `ragctl reads and writes tenant stores below a storage directory
without a running server. Configuration comes from --config and RAG_*
environment variables, the same way ragd loads it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file")
	pf.StringVar(&opts.baseDir, "base-dir", "", "storage directory (overrides storage.base_dir)")
	pf.StringVar(&opts.embedder, "embedder", "", "embeddings provider: fastembed, tei, openai or hash (overrides embeddings.provider)")
	pf.StringVar(&opts.org, "org", "", "organization")
	pf.StringVar(&opts.user, "user", "", "user id")
	pf.StringVar(&opts.domain, "domain", "", "knowledge domain (default: general)")
	pf.BoolVar(&opts.asJSON, "json", false, "output results as JSON")

	root.AddCommand(
		newIngestCmd(opts),
		newUploadCmd(opts),
		newSearchCmd(opts),
		newFanOutCmd(opts),
		newInspectCmd(opts),
		newDomainsCmd(opts),
	)
	return root
}

// openRegistry loads configuration and opens a registry over the storage
// directory. The returned func releases it.
func openRegistry(opts *options) (*registry.Registry, *config.Config, func(), error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if opts.baseDir != "" {
		cfg.Storage.BaseDir = opts.baseDir
	}
	if opts.embedder != "" {
		cfg.Embeddings.Provider = opts.embedder
	}

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
		return nil, nil, nil, fmt.Errorf("creating embeddings provider: %w", err)
	}
	embedder := embeddings.NewGuard(provider, embeddings.GuardOptions{
		Timeout:       cfg.Embeddings.Timeout.Duration(),
		RatePerSecond: cfg.Embeddings.RatePerSecond,
		Burst:         cfg.Embeddings.Burst,
		Model:         cfg.Embeddings.Model,
	})

	reg, err := registry.New(registry.Options{
		BaseDir:   cfg.Storage.BaseDir,
		Embedder:  embedder,
		Dimension: embedder.Dimension(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		_ = embedder.Close()
		return nil, nil, nil, err
	}
	return reg, cfg, func() {
		_ = reg.Close()
		_ = embedder.Close()
	}, nil
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
