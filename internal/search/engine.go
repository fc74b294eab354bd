// Package search answers semantic queries against the vector index.
package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/semdex/semdex/internal/embed"
	"github.com/semdex/semdex/internal/extract"
	"github.com/semdex/semdex/internal/index"
)

// Optimizer rewrites a free-form query into a cleaner search phrase.
// Implementations never fail past this boundary: on any internal error
// they return the original query.
type Optimizer interface {
	OptimizeQuery(ctx context.Context, query string) string
}

// Recorder receives query telemetry. A nil Recorder disables it.
type Recorder interface {
	RecordQuery(ctx context.Context, query string, results int, latency time.Duration)
}

// Result is one search hit with its file metadata attached.
type Result struct {
	ID       uint64
	Distance float32
	Meta     extract.FileMetadata
}

// QueryEngine runs the optimize, embed, search pipeline.
//
// It degrades rather than fails: an unreachable optimizer falls back to
// the raw query, and any deeper error is logged and surfaces to the
// caller as zero results.
type QueryEngine struct {
	index     *index.Index
	embedder  embed.Embedder
	optimizer Optimizer
	recorder  Recorder
	logger    *slog.Logger
}

// New creates a query engine. optimizer and recorder may be nil.
func New(idx *index.Index, embedder embed.Embedder, optimizer Optimizer, recorder Recorder, logger *slog.Logger) *QueryEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryEngine{
		index:     idx,
		embedder:  embedder,
		optimizer: optimizer,
		recorder:  recorder,
		logger:    logger,
	}
}

// Search returns up to topK files ranked by semantic similarity to the
// query. optimize selects whether the query is rewritten first.
func (e *QueryEngine) Search(ctx context.Context, query string, topK int, optimize bool) []Result {
	start := time.Now()

	effective := query
	if optimize && e.optimizer != nil {
		effective = e.optimizer.OptimizeQuery(ctx, query)
		if effective != query {
			e.logger.Debug("query optimized",
				slog.String("original", query),
				slog.String("optimized", effective))
		}
	}

	results := e.search(ctx, effective, topK)

	e.logger.Info("search complete",
		slog.String("query", effective),
		slog.Int("results", len(results)),
		slog.Duration("latency", time.Since(start)))
	if e.recorder != nil {
		e.recorder.RecordQuery(ctx, effective, len(results), time.Since(start))
	}
	return results
}

func (e *QueryEngine) search(ctx context.Context, query string, topK int) []Result {
	if topK <= 0 {
		return nil
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Error("failed to embed query",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return nil
	}

	hits, err := e.index.Search(vector, topK)
	if err != nil {
		e.logger.Error("index search failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return nil
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{ID: h.ID, Distance: h.Distance, Meta: h.Meta})
	}
	return results
}
