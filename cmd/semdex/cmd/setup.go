package cmd

import (
	"context"
	"log/slog"

	"github.com/semdex/semdex/internal/config"
	"github.com/semdex/semdex/internal/embed"
	"github.com/semdex/semdex/internal/extract"
	"github.com/semdex/semdex/internal/index"
	"github.com/semdex/semdex/internal/llm"
	"github.com/semdex/semdex/internal/output"
	"github.com/semdex/semdex/internal/scanner"
	"github.com/semdex/semdex/internal/search"
	"github.com/semdex/semdex/internal/telemetry"
)

// loadConfig loads the configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// buildEmbedder constructs the configured embedding provider, wrapped
// in the LRU cache when one is configured.
func buildEmbedder(cfg *config.Config) embed.Embedder {
	var inner embed.Embedder
	switch cfg.Embeddings.Provider {
	case "static":
		inner = embed.NewStaticEmbedder()
	default:
		inner = embed.NewOllamaEmbedder(embed.OllamaConfig{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Index.Dimension,
		}, slog.Default())
	}

	if cfg.Embeddings.CacheSize > 0 {
		return embed.NewCachedEmbedder(inner, cfg.Embeddings.CacheSize)
	}
	return inner
}

// openIndex opens the persisted index with the embedder's dimension,
// which keeps config drift from silently corrupting stored vectors.
func openIndex(cfg *config.Config, embedder embed.Embedder) (*index.Index, error) {
	return index.New(index.Config{
		Dimension: embedder.Dimensions(),
		IndexPath: cfg.IndexPath(),
		MetaPath:  cfg.MetaPath(),
	}, slog.Default())
}

// buildScanner wires the full indexing pipeline with progress routed
// to the CLI writer.
func buildScanner(cfg *config.Config, idx *index.Index, embedder embed.Embedder, out *output.Writer) *scanner.Scanner {
	registry := extract.NewRegistry(
		extract.NewTextExtractor(),
		extract.NewPDFExtractorWithPages(cfg.Scanner.PDFMaxPages),
	)
	return scanner.New(idx, embedder, registry, scanner.Config{
		Workers: cfg.Scanner.Workers,
		LogPath: cfg.Scanner.LogPath,
		Notify:  func(msg string) { out.Status("", msg) },
	}, slog.Default())
}

// buildOptimizer returns the Gemini optimizer, or nil when disabled or
// unconfigured. A broken optimizer setup degrades to plain search.
func buildOptimizer(ctx context.Context, cfg *config.Config) search.Optimizer {
	if !cfg.Optimizer.Enabled || cfg.Optimizer.APIKey == "" {
		return nil
	}
	opt, err := llm.NewGeminiOptimizer(ctx, llm.Config{
		APIKey: cfg.Optimizer.APIKey,
		Model:  cfg.Optimizer.Model,
	}, slog.Default())
	if err != nil {
		slog.Warn("query optimizer unavailable", slog.String("error", err.Error()))
		return nil
	}
	return opt
}

// openTelemetry opens the telemetry store, or returns nil when it
// cannot be opened. Search and scan work fine without it.
func openTelemetry(cfg *config.Config) *telemetry.Store {
	store, err := telemetry.Open(cfg.TelemetryPath(), slog.Default())
	if err != nil {
		slog.Warn("telemetry unavailable", slog.String("error", err.Error()))
		return nil
	}
	return store
}
