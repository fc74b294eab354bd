// Package embed provides embedding providers for semdex.
// An Embedder maps text to a fixed-length vector. Providers must degrade
// to a zero vector of the correct dimension on internal failure so that
// downstream code can assume every successful extraction yields a usable
// vector; the only error an Embedder returns is for empty input or a
// closed provider.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	// DefaultTimeout is the default timeout for embedding requests.
	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the embedding dimension for the static embedder.
	StaticDimensions = 256

	// DefaultOllamaDimensions is the dimension of nomic-embed-text.
	DefaultOllamaDimensions = 768

	// DefaultEmbeddingCacheSize is the default LRU cache capacity.
	DefaultEmbeddingCacheSize = 1000
)

// ErrEmptyInput is returned when the input text is empty or whitespace.
var ErrEmptyInput = errors.New("input text cannot be empty")

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text. Provider-internal
	// failures yield a zero vector of Dimensions() length, not an error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// ZeroVector returns the fallback vector for a failed embedding.
func ZeroVector(dims int) []float32 {
	return make([]float32, dims)
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
