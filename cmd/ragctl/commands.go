package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
	"github.com/fyrsmithlabs/tenantrag/internal/ingest"
	"github.com/fyrsmithlabs/tenantrag/internal/registry"
	"github.com/fyrsmithlabs/tenantrag/internal/store"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
)

func newIngestCmd(opts *options) *cobra.Command {
	var (
		mode    string
		profile tenant.Profile
	)
	cmd := &cobra.Command{
		Use:   "ingest <chunks.json>",
		Short: "Ingest a JSON array of chunks",
		Long: `Ingest a JSON array of chunk records into one tenant store.

Each record carries a chunk_type of qa, file_fragment or other:
  [{"chunk_type":"qa","question":"...","answer":"..."}]

Examples:
  # Append chunks
  ragctl ingest --org acme --user u1 --domain sales chunks.json

  # Replace the store contents from stdin
  cat chunks.json | ragctl ingest --org acme --user u1 --mode replace -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := store.ParseMode(mode)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var records []chunk.Record
			if err := json.Unmarshal(data, &records); err != nil {
				return fmt.Errorf("decoding chunks: %w", err)
			}

			reg, _, closeFn, err := openRegistry(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := reg.Resolve(cmd.Context(), opts.key())
			if err != nil {
				return err
			}
			if err := st.Ingest(cmd.Context(), chunk.FromRecords(records), profile, m); err != nil {
				return err
			}
			return report(cmd, opts, st, len(records))
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "append", "append or replace")
	cmd.Flags().StringVar(&profile.Name, "name", "", "tenant profile name")
	cmd.Flags().StringVar(&profile.Contact, "contact", "", "tenant profile contact")
	cmd.Flags().StringVar(&profile.Email, "email", "", "tenant profile email")
	return cmd
}

func newUploadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Split a text, markdown, CSV or JSON file and append it",
		Long: fmt.Sprintf(`Split a file into fragments and append them to one tenant store.

Supported extensions: %s

Examples:
  ragctl upload --org acme --user u1 --domain docs handbook.md`, strings.Join(ingest.SupportedExtensions(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, cfg, closeFn, err := openRegistry(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			splitter, err := ingest.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			upload, err := splitter.Split(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			st, err := reg.Resolve(cmd.Context(), opts.key())
			if err != nil {
				return err
			}
			if err := st.Ingest(cmd.Context(), upload.Chunks, tenant.Profile{}, store.ModeAppend); err != nil {
				return err
			}
			return report(cmd, opts, st, len(upload.Chunks))
		},
	}
}

func newSearchCmd(opts *options) *cobra.Command {
	var (
		k     int
		alpha float64
		mode  string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search one tenant store",
		Long: `Search one tenant store.

Modes:
  hybrid   blend of semantic and keyword relevance weighted by --alpha (default)
  plain    nearest neighbors only
  keyword  substring scan in storage order, no embedding

Examples:
  ragctl search --org acme --user u1 --domain grocery "price of rice"
  ragctl search --org acme --user u1 --mode keyword --k 5 rice`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			reg, _, closeFn, err := openRegistry(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := reg.Resolve(cmd.Context(), opts.key())
			if err != nil {
				return err
			}

			var results []store.Result
			switch mode {
			case "hybrid":
				results, err = st.HybridSearch(cmd.Context(), query, k, alpha)
			case "plain":
				results, err = st.Search(cmd.Context(), query, k)
			case "keyword":
				results, err = st.KeywordSearch(cmd.Context(), query, k)
			default:
				return fmt.Errorf("mode must be plain, hybrid or keyword, got %q", mode)
			}
			if err != nil {
				return err
			}
			return printResults(cmd, opts, results)
		},
	}
	cmd.Flags().IntVar(&k, "k", 3, "maximum results")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.5, "semantic weight for hybrid mode")
	cmd.Flags().StringVar(&mode, "mode", "hybrid", "plain, hybrid or keyword")
	return cmd
}

func newFanOutCmd(opts *options) *cobra.Command {
	var (
		k     int
		alpha float64
	)
	cmd := &cobra.Command{
		Use:   "fanout <query>",
		Short: "Search every domain of an organization and user",
		Long: `Search every domain holding data for --org and --user, dropping
results whose text was already returned. --domain, when set, is searched
first so its copy of a duplicate wins.

Examples:
  ragctl fanout --org acme --user u1 "refund policy"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, closeFn, err := openRegistry(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			results, err := reg.FanOutSearch(cmd.Context(), opts.org, opts.user, strings.Join(args, " "), registry.FanOutOptions{
				K:               k,
				Alpha:           alpha,
				PreferredDomain: opts.domain,
			})
			if err != nil {
				return err
			}
			return printResults(cmd, opts, results)
		},
	}
	cmd.Flags().IntVar(&k, "k", 3, "maximum results")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.5, "semantic weight")
	return cmd
}

func newInspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show the committed state of one tenant store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, _, closeFn, err := openRegistry(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := reg.Resolve(cmd.Context(), opts.key())
			if err != nil {
				return err
			}
			snap := st.Snapshot()
			if opts.asJSON {
				return outputJSON(cmd.OutOrStdout(), snap)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tenant:     %s\n", snap.Tenant)
			fmt.Fprintf(out, "Path:       %s\n", st.Path())
			fmt.Fprintf(out, "Generation: %d\n", snap.Generation)
			fmt.Fprintf(out, "Dimension:  %d\n", snap.Dimension)
			fmt.Fprintf(out, "Chunks:     %d\n", len(snap.Chunks))
			if !snap.Profile.IsZero() {
				fmt.Fprintf(out, "Profile:    %s <%s> %s\n", snap.Profile.Name, snap.Profile.Email, snap.Profile.Contact)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ROW\tTYPE\tTEXT")
			for i, r := range snap.Chunks {
				fmt.Fprintf(w, "%d\t%s\t%s\n", i, r.Chunk.Type(), truncate(chunk.DeriveText(r.Chunk), 60))
			}
			return w.Flush()
		},
	}
}

func newDomainsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "domains",
		Short: "List the domains holding data for an organization and user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, _, closeFn, err := openRegistry(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			domains, err := reg.Domains(cmd.Context(), opts.org, opts.user)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return outputJSON(cmd.OutOrStdout(), map[string]any{"domains": domains})
			}
			for _, d := range domains {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}

func report(cmd *cobra.Command, opts *options, st *store.Store, ingested int) error {
	if opts.asJSON {
		return outputJSON(cmd.OutOrStdout(), map[string]any{
			"tenant":   st.Key().String(),
			"ingested": ingested,
			"size":     st.Size(),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d chunks into %s (%d total)\n", ingested, st.Key(), st.Size())
	return nil
}

func printResults(cmd *cobra.Command, opts *options, results []store.Result) error {
	if opts.asJSON {
		return outputJSON(cmd.OutOrStdout(), map[string]any{"results": results})
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tSEMANTIC\tKEYWORD\tTENANT\tTEXT")
	for _, r := range results {
		fmt.Fprintf(w, "%.3f\t%.3f\t%.3f\t%s\t%s\n", r.Score, r.Semantic, r.Keyword, r.Tenant, truncate(r.Text, 60))
	}
	return w.Flush()
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
