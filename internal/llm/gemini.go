// Package llm holds the Gemini-backed query optimizer.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// optimizePrompt asks the model for a bare topic phrase. The examples
// anchor the format so no explanation text comes back.
const optimizePrompt = `Extract the main topic from the query by removing all unnecessary words.
Return only the extracted topic without any additional text or explanation.

Examples:
Input: give me the document that talks about Review and Evaluation of Clinical Data
Output: Review and Evaluation of Clinical Data

Input: there is a document that talks about office of state fire marshal give it to me
Output: office of state fire marshal

Input: I need to find information about Hanford RCRA permits in the documents
Output: Hanford RCRA permits

Input: %s
Output:`

// Config configures the Gemini optimizer.
type Config struct {
	// APIKey authorizes requests. Empty disables the optimizer.
	APIKey string

	// Model is the model name. Default: gemini-2.0-flash.
	Model string

	// Temperature controls sampling. Default: 0.2.
	Temperature float32
}

// WithDefaults returns the config with defaults applied.
func (c Config) WithDefaults() Config {
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	return c
}

// GeminiOptimizer rewrites noisy natural-language queries into topic
// phrases before embedding. It satisfies search.Optimizer: any failure
// returns the original query unchanged, so search never depends on the
// API being reachable.
type GeminiOptimizer struct {
	client *genai.Client
	cfg    Config
	logger *slog.Logger
}

// NewGeminiOptimizer creates the optimizer. An empty API key is an
// error; callers treat that as "no optimizer" rather than passing a
// crippled one around.
func NewGeminiOptimizer(ctx context.Context, cfg Config, logger *slog.Logger) (*GeminiOptimizer, error) {
	cfg = cfg.WithDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiOptimizer{client: client, cfg: cfg, logger: logger}, nil
}

// OptimizeQuery extracts the topic phrase from a query. On any failure,
// including an empty model response, the original query is returned.
func (g *GeminiOptimizer) OptimizeQuery(ctx context.Context, query string) string {
	result, err := g.client.Models.GenerateContent(
		ctx,
		g.cfg.Model,
		genai.Text(fmt.Sprintf(optimizePrompt, query)),
		&genai.GenerateContentConfig{
			Temperature: genai.Ptr(g.cfg.Temperature),
		},
	)
	if err != nil {
		g.logger.Warn("query optimization failed, using original query",
			slog.String("error", err.Error()))
		return query
	}

	optimized := strings.TrimSpace(result.Text())
	// Some responses echo the prompt scaffold.
	optimized = strings.TrimSpace(strings.TrimPrefix(optimized, "Output:"))
	if optimized == "" {
		g.logger.Warn("query optimization returned empty text, using original query")
		return query
	}
	return optimized
}
