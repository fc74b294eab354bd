package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/semdex/semdex/internal/output"
	"github.com/semdex/semdex/internal/telemetry"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index size and recent activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd)
		},
	}
}

func runStatus(ctx context.Context, cmd *cobra.Command) error {
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

	out.Statusf("📁", "index: %s", cfg.Index.Dir)
	out.Statusf("", "files indexed: %d", idx.Count())
	out.Statusf("", "vector dimension: %d", idx.Dimension())
	out.Statusf("", "embedding model: %s", embedder.ModelName())

	store := openTelemetry(cfg)
	if store == nil {
		return nil
	}
	defer func() { _ = store.Close() }()

	printScanHistory(ctx, out, store)
	printQueryStats(ctx, out, store)
	return nil
}

func printScanHistory(ctx context.Context, out *output.Writer, store *telemetry.Store) {
	scans, err := store.ScanHistory(ctx, 3)
	if err != nil || len(scans) == 0 {
		return
	}

	out.Newline()
	out.Status("", "recent scans:")
	for _, s := range scans {
		out.Statusf("", "  %s: %d files, %d errors, took %s",
			s.StartedAt.Format(time.DateTime), s.Files, s.Errors, s.Duration.Round(time.Millisecond))
	}
}

func printQueryStats(ctx context.Context, out *output.Writer, store *telemetry.Store) {
	to := time.Now()
	from := to.AddDate(0, 0, -7)
	counts, err := store.LatencyCounts(ctx, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil || len(counts) == 0 {
		return
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	out.Newline()
	out.Statusf("", "queries this week: %d (slow: %d)", total, counts[telemetry.BucketP1000])

	if misses, err := store.ZeroResultQueries(ctx, 3); err == nil && len(misses) > 0 {
		out.Status("", "recent queries with no results:")
		for _, q := range misses {
			out.Statusf("", "  %q", q)
		}
	}
}
