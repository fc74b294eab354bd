// Package config loads the semdex configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Config file (~/.semdex/config.yaml, or the path given explicitly)
//  3. Environment variables (SEMDEX_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete semdex configuration.
type Config struct {
	Roots      []string         `yaml:"roots"`
	Index      IndexConfig      `yaml:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// IndexConfig configures the vector index artifacts.
type IndexConfig struct {
	// Dir holds index.hnsw, index.meta and the lock file.
	Dir string `yaml:"dir"`

	// Dimension is the vector dimension. It must match the embedding
	// provider; a persisted index refuses to load under a different
	// dimension.
	Dimension int `yaml:"dimension"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama" or "static".
	Provider string `yaml:"provider"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host"`

	// Model is the embedding model name for the ollama provider.
	Model string `yaml:"model"`

	// CacheSize is the embedding LRU cache capacity (0 disables it).
	CacheSize int `yaml:"cache_size"`
}

// ScannerConfig configures directory scanning.
type ScannerConfig struct {
	// Workers bounds the multi-root scan fan-out.
	Workers int `yaml:"workers"`

	// PDFMaxPages caps how many pages are read per PDF.
	PDFMaxPages int `yaml:"pdf_max_pages"`

	// LogPath is the append-only scan report ("" disables it).
	LogPath string `yaml:"log_path"`
}

// Duration is a time.Duration that round-trips through YAML in the
// "200ms" / "5s" notation.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MonitorConfig configures change monitoring.
type MonitorConfig struct {
	Cooldown          Duration `yaml:"cooldown"`
	CreateSuppression Duration `yaml:"create_suppression"`
	SettleWait        Duration `yaml:"settle_wait"`
	Workers           int      `yaml:"workers"`
}

// OptimizerConfig configures the Gemini query optimizer.
type OptimizerConfig struct {
	// Enabled turns query rewriting on. It also needs an API key,
	// from here or from SEMDEX_GEMINI_API_KEY.
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// LoggingConfig configures the log output.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// New returns a config populated with defaults.
func New() *Config {
	return &Config{
		Index: IndexConfig{
			Dir:       filepath.Join(dataDir(), "index"),
			Dimension: 768,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			OllamaHost: "http://localhost:11434",
			Model:      "nomic-embed-text",
			CacheSize:  1000,
		},
		Scanner: ScannerConfig{
			Workers:     4,
			PDFMaxPages: 1,
			LogPath:     filepath.Join(dataDir(), "scan_result.log"),
		},
		Monitor: MonitorConfig{
			Cooldown:          Duration(time.Second),
			CreateSuppression: Duration(2 * time.Second),
			SettleWait:        Duration(200 * time.Millisecond),
			Workers:           4,
		},
		Optimizer: OptimizerConfig{
			Model: "gemini-2.0-flash",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(dataDir(), "config.yaml")
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".semdex")
	}
	return filepath.Join(home, ".semdex")
}

// Load reads the config file at path, or the default location when
// path is empty. A missing file is fine; defaults apply.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Unmarshalling over the defaults leaves absent keys at their
		// default values.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// No config file, defaults apply.
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEMDEX_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("SEMDEX_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("SEMDEX_GEMINI_API_KEY"); v != "" {
		c.Optimizer.APIKey = v
	}
	if v := os.Getenv("SEMDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if c.Index.Dimension < 1 {
		return fmt.Errorf("index.dimension must be positive, got %d", c.Index.Dimension)
	}

	validProviders := map[string]bool{"ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider)
	}

	if c.Scanner.Workers < 0 {
		return fmt.Errorf("scanner.workers must be non-negative, got %d", c.Scanner.Workers)
	}
	if c.Monitor.Workers < 0 {
		return fmt.Errorf("monitor.workers must be non-negative, got %d", c.Monitor.Workers)
	}
	if c.Scanner.PDFMaxPages < 0 {
		return fmt.Errorf("scanner.pdf_max_pages must be non-negative, got %d", c.Scanner.PDFMaxPages)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// IndexPath returns the ANN artifact path.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Index.Dir, "index.hnsw")
}

// MetaPath returns the metadata artifact path.
func (c *Config) MetaPath() string {
	return filepath.Join(c.Index.Dir, "index.meta")
}

// TelemetryPath returns the telemetry database path.
func (c *Config) TelemetryPath() string {
	return filepath.Join(c.Index.Dir, "telemetry.db")
}
