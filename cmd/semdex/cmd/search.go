package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/semdex/semdex/internal/output"
	"github.com/semdex/semdex/internal/search"
	"github.com/semdex/semdex/internal/telemetry"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	format   string // "text", "json"
	optimize bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed files",
		Long: `Search finds the files whose content best matches a
natural-language query.

Examples:
  semdex search "quarterly budget spreadsheet notes"
  semdex search "the pdf about fire safety" --optimize
  semdex search "tax documents" --format json --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.optimize, "optimize", false, "Rewrite the query with the configured LLM first")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())

	embedder := buildEmbedder(cfg)
	defer func() { _ = embedder.Close() }()

	idx, err := openIndex(cfg, embedder)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	store := openTelemetry(cfg)
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	engine := search.New(idx, embedder, buildOptimizer(ctx, cfg), recorderOrNil(store), nil)
	results := engine.Search(ctx, query, opts.limit, opts.optimize)

	if opts.format == "json" {
		return printJSON(cmd, results)
	}

	if len(results) == 0 {
		out.Status("", "no matching files")
		return nil
	}
	for i, r := range results {
		out.Statusf("", "%2d. %s (distance %.4f)", i+1, r.Meta.Path, r.Distance)
	}
	return nil
}

// recorderOrNil avoids handing the engine a typed nil.
func recorderOrNil(store *telemetry.Store) search.Recorder {
	if store == nil {
		return nil
	}
	return store
}

func printJSON(cmd *cobra.Command, results []search.Result) error {
	type jsonResult struct {
		Path     string  `json:"path"`
		Filename string  `json:"filename"`
		FileType string  `json:"file_type"`
		Distance float32 `json:"distance"`
	}

	payload := make([]jsonResult, 0, len(results))
	for _, r := range results {
		payload = append(payload, jsonResult{
			Path:     r.Meta.Path,
			Filename: r.Meta.Filename,
			FileType: r.Meta.FileType,
			Distance: r.Distance,
		})
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
