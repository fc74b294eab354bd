package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Ollama API constants.
const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model for documents.
	DefaultOllamaModel = "nomic-embed-text"

	// ollamaPoolSize for the HTTP connection pool.
	ollamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434).
	Host string

	// Model is the embedding model to use (default: nomic-embed-text).
	Model string

	// Dimensions overrides auto-detection (0 = detect on first call).
	Dimensions int

	// Timeout for API requests (default: 60s).
	Timeout time.Duration
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
// Provider failures after construction are absorbed into a zero vector of
// the configured dimension; callers never see transport errors.
type OllamaEmbedder struct {
	client *http.Client
	logger *slog.Logger
	config OllamaConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates a new Ollama embedder.
func NewOllamaEmbedder(cfg OllamaConfig, logger *slog.Logger) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        ollamaPoolSize,
		MaxIdleConnsPerHost: ollamaPoolSize,
		IdleConnTimeout:     10 * time.Second,
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = DefaultOllamaDimensions
	}

	return &OllamaEmbedder{
		client: &http.Client{Transport: transport},
		logger: logger,
		config: cfg,
		dims:   dims,
	}
}

// Embed generates an embedding for a single text. On any transport or
// decode failure the zero vector is returned and the failure is logged.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	vec, err := e.doEmbed(ctx, text)
	if err != nil {
		e.logger.Error("embedding request failed, using zero vector",
			slog.String("model", e.config.Model),
			slog.String("error", err.Error()))
		return ZeroVector(e.Dimensions()), nil
	}
	return vec, nil
}

// doEmbed performs one request against the Ollama embed endpoint.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, text string) ([]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var decoded ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Embeddings) == 0 || len(decoded.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned no embedding")
	}

	vec := decoded.Embeddings[0]

	// First successful call pins the dimension when auto-detecting.
	e.mu.Lock()
	if e.config.Dimensions == 0 && e.dims != len(vec) {
		e.dims = len(vec)
	}
	e.mu.Unlock()

	return normalizeVector(vec), nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases HTTP resources.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if t, ok := e.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}
