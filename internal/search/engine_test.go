package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semdex/semdex/internal/embed"
	"github.com/semdex/semdex/internal/extract"
	"github.com/semdex/semdex/internal/index"
	"github.com/semdex/semdex/internal/logging"
)

// rewriteOptimizer returns a fixed rewrite for any query.
type rewriteOptimizer struct {
	rewrite string
	calls   int
}

func (o *rewriteOptimizer) OptimizeQuery(_ context.Context, query string) string {
	o.calls++
	if o.rewrite == "" {
		return query
	}
	return o.rewrite
}

// captureRecorder remembers the last recorded query.
type captureRecorder struct {
	query   string
	results int
	latency time.Duration
	calls   int
}

func (r *captureRecorder) RecordQuery(_ context.Context, query string, results int, latency time.Duration) {
	r.calls++
	r.query = query
	r.results = results
	r.latency = latency
}

// failingEmbedder always errors, to exercise degradation.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider unreachable")
}
func (failingEmbedder) Dimensions() int   { return embed.StaticDimensions }
func (failingEmbedder) ModelName() string { return "failing" }
func (failingEmbedder) Close() error      { return nil }

func newTestIndex(t *testing.T) *index.Index {
	t.Helper()
	dir := t.TempDir()
	idx, err := index.New(index.Config{
		Dimension: embed.StaticDimensions,
		IndexPath: filepath.Join(dir, "index.hnsw"),
		MetaPath:  filepath.Join(dir, "index.meta"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func indexText(t *testing.T, idx *index.Index, embedder embed.Embedder, id uint64, path, text string) {
	t.Helper()
	vec, err := embedder.Embed(context.Background(), text)
	require.NoError(t, err)
	require.NoError(t, idx.Add(id, vec, extract.FileMetadata{Path: path, Filename: filepath.Base(path), FileType: "txt"}))
}

func TestQueryEngine_FindsRelevantFile(t *testing.T) {
	// Given an index holding documents on two different topics
	idx := newTestIndex(t)
	embedder := embed.NewStaticEmbedder()
	indexText(t, idx, embedder, 1, "/docs/recipes.txt", "chocolate cake recipe with butter flour and sugar")
	indexText(t, idx, embedder, 2, "/docs/taxes.txt", "annual income tax return filing deadline forms")

	engine := New(idx, embedder, nil, nil, logging.NewTestLogger())

	// When searching for one of the topics
	results := engine.Search(context.Background(), "cake baking recipe", 1, false)

	// Then the matching document ranks first
	require.Len(t, results, 1)
	assert.Equal(t, "/docs/recipes.txt", results[0].Meta.Path)
}

func TestQueryEngine_OptimizerRewriteIsUsed(t *testing.T) {
	// Given an optimizer that rewrites every query
	idx := newTestIndex(t)
	embedder := embed.NewStaticEmbedder()
	indexText(t, idx, embedder, 1, "/docs/recipes.txt", "chocolate cake recipe")
	opt := &rewriteOptimizer{rewrite: "chocolate cake recipe"}
	rec := &captureRecorder{}

	engine := New(idx, embedder, opt, rec, logging.NewTestLogger())

	// When searching with optimization on
	results := engine.Search(context.Background(), "uh that sweet thing i baked", 5, true)

	// Then the rewritten query drove the search and the telemetry
	assert.Equal(t, 1, opt.calls)
	require.NotEmpty(t, results)
	assert.Equal(t, "chocolate cake recipe", rec.query)
}

func TestQueryEngine_OptimizeFlagOffSkipsOptimizer(t *testing.T) {
	// Given an optimizer wired into the engine
	idx := newTestIndex(t)
	embedder := embed.NewStaticEmbedder()
	opt := &rewriteOptimizer{rewrite: "should not be used"}

	engine := New(idx, embedder, opt, nil, logging.NewTestLogger())

	// When searching with optimization off
	engine.Search(context.Background(), "plain query", 5, false)

	// Then the optimizer is never consulted
	assert.Equal(t, 0, opt.calls)
}

func TestQueryEngine_EmbedFailureYieldsEmptyResults(t *testing.T) {
	// Given an embedder that always fails
	idx := newTestIndex(t)
	engine := New(idx, failingEmbedder{}, nil, nil, logging.NewTestLogger())

	// When searching
	results := engine.Search(context.Background(), "anything", 5, false)

	// Then the caller sees empty results, not an error
	assert.Empty(t, results)
}

func TestQueryEngine_EmptyIndexYieldsEmptyResults(t *testing.T) {
	// Given an empty index
	idx := newTestIndex(t)
	engine := New(idx, embed.NewStaticEmbedder(), nil, nil, logging.NewTestLogger())

	// When searching
	results := engine.Search(context.Background(), "anything at all", 10, false)

	// Then the result set is empty
	assert.Empty(t, results)
}

func TestQueryEngine_NonPositiveTopK(t *testing.T) {
	idx := newTestIndex(t)
	embedder := embed.NewStaticEmbedder()
	indexText(t, idx, embedder, 1, "/docs/a.txt", "some indexed content")
	engine := New(idx, embedder, nil, nil, logging.NewTestLogger())

	assert.Empty(t, engine.Search(context.Background(), "content", 0, false))
	assert.Empty(t, engine.Search(context.Background(), "content", -3, false))
}

func TestQueryEngine_RecordsZeroResultQueries(t *testing.T) {
	// Given a telemetry sink and an empty index
	idx := newTestIndex(t)
	rec := &captureRecorder{}
	engine := New(idx, embed.NewStaticEmbedder(), nil, rec, logging.NewTestLogger())

	// When a query finds nothing
	engine.Search(context.Background(), "no matches here", 5, false)

	// Then the zero-result query is still recorded
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, 0, rec.results)
}
