package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts provider calls.
type countingEmbedder struct {
	*StaticEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func TestCachedEmbedder_CacheHit(t *testing.T) {
	// Given: a cached embedder over a call-counting provider
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	defer func() { _ = cached.Close() }()

	// When: the same text is embedded three times
	var first []float32
	for i := 0; i < 3; i++ {
		vec, err := cached.Embed(context.Background(), "same query")
		require.NoError(t, err)
		if first == nil {
			first = vec
		} else {
			assert.Equal(t, first, vec)
		}
	}

	// Then: the provider was only called once
	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestCachedEmbedder_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	defer func() { _ = cached.Close() }()

	_, err := cached.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = cached.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)

	// Both failed calls reached the provider.
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedEmbedder_PassThroughMetadata(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(), 0)
	assert.Equal(t, StaticDimensions, cached.Dimensions())
	assert.Equal(t, "static", cached.ModelName())
}
