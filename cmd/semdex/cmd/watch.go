package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/semdex/semdex/internal/monitor"
	"github.com/semdex/semdex/internal/output"
	"github.com/semdex/semdex/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var skipScan bool

	cmd := &cobra.Command{
		Use:   "watch [directory...]",
		Short: "Watch directories and keep the index current",
		Long: `Watch scans the given directories (or the configured roots),
then keeps watching them: created and modified files are indexed,
deleted files are removed from the index. Runs until interrupted.

Examples:
  semdex watch ~/Documents
  semdex watch --skip-scan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, args, skipScan)
		},
	}

	cmd.Flags().BoolVar(&skipScan, "skip-scan", false, "Skip the initial scan and only watch for changes")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, args []string, skipScan bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	roots := args
	if len(roots) == 0 {
		roots = cfg.Roots
	}
	if len(roots) == 0 {
		return fmt.Errorf("no directories to watch: pass them as arguments or set roots in the config")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := output.New(cmd.OutOrStdout())

	embedder := buildEmbedder(cfg)
	defer func() { _ = embedder.Close() }()

	idx, err := openIndex(cfg, embedder)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	s := buildScanner(cfg, idx, embedder, out)
	if !skipScan {
		report := s.ScanDirectories(ctx, roots)
		out.Successf("initial scan: %d files indexed, %d errors", len(report.Records), len(report.Errors))
	}

	w, err := watcher.NewFSWatcher(watcher.Options{}, nil)
	if err != nil {
		return err
	}

	m := monitor.New(s, idx, monitor.Options{
		Cooldown:          cfg.Monitor.Cooldown.Std(),
		CreateSuppression: cfg.Monitor.CreateSuppression.Std(),
		SettleWait:        cfg.Monitor.SettleWait.Std(),
		Workers:           cfg.Monitor.Workers,
		Notify: func(path string, kind watcher.Kind) {
			out.Statusf("", "%s: %s", kind, path)
		},
	}, nil)

	out.Statusf("👀", "watching %d directories, press Ctrl-C to stop", len(roots))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := w.Start(gctx, roots...)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return m.Run(gctx, w.Events())
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-w.Errors():
				if !ok {
					return nil
				}
				out.Warningf("watcher: %v", err)
			}
		}
	})

	err = g.Wait()
	_ = w.Stop()
	if stopErr := m.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}
