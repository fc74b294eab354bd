// Package cmd provides the CLI commands for semdex.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/semdex/semdex/internal/logging"
	"github.com/semdex/semdex/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the semdex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "semdex",
		Short: "Semantic search over your local files",
		Long: `Semdex indexes the text and PDF files in your directories and
answers natural-language queries about their content.

Run 'semdex scan' once to build the index, then 'semdex search' to
query it. 'semdex watch' keeps the index current as files change.`,
		Version:      version.Short(),
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("semdex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.semdex/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.semdex/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = teardownLogging

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	cfg.WriteToStderr = false

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
