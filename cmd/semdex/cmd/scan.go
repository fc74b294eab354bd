package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/semdex/semdex/internal/output"
	"github.com/semdex/semdex/internal/telemetry"
)

func newScanCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "scan [directory...]",
		Short: "Index the files under one or more directories",
		Long: `Scan walks the given directories (or the configured roots when
none are given), extracts text from supported files and adds them to
the index.

Examples:
  semdex scan ~/Documents
  semdex scan ~/Documents ~/Desktop
  semdex scan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cmd, args, quiet)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress per-file progress output")
	return cmd
}

func runScan(ctx context.Context, cmd *cobra.Command, args []string, quiet bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	roots := args
	if len(roots) == 0 {
		roots = cfg.Roots
	}
	if len(roots) == 0 {
		return fmt.Errorf("no directories to scan: pass them as arguments or set roots in the config")
	}

	out := output.New(cmd.OutOrStdout())
	progress := out
	if quiet {
		progress = output.New(io.Discard)
	}

	embedder := buildEmbedder(cfg)
	defer func() { _ = embedder.Close() }()

	idx, err := openIndex(cfg, embedder)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	s := buildScanner(cfg, idx, embedder, progress)
	report := s.ScanDirectories(ctx, roots)

	if store := openTelemetry(cfg); store != nil {
		store.RecordScan(ctx, telemetry.ScanRecord{
			StartedAt: report.ScanTime,
			Duration:  report.Duration,
			Files:     len(report.Records),
			Errors:    len(report.Errors),
		})
		_ = store.Close()
	}

	for _, e := range report.Errors {
		out.Warning(e)
	}
	out.Successf("indexed %d files in %s (%d errors, %d files total in index)",
		len(report.Records), report.Duration.Round(time.Millisecond), len(report.Errors), idx.Count())
	return nil
}
