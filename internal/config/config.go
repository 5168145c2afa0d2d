// Package config loads sgrep-evals settings from the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"
)

// Defaults for unset values.
const (
	DefaultDatasetDir   = "target/datasets/code-search-net"
	DefaultReposDir     = "target/datasets/eval-repos"
	DefaultIndexDir     = "target/eval_db"
	DefaultLogLevel     = "info"
	DefaultFetchWorkers = 8
)

// ErrMissingAPIKey is returned by RequireAPIKey when OPENAI_API_KEY is unset.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

// Config is the complete configuration.
type Config struct {
	OpenAI OpenAIConfig `koanf:"openai"`
	Evals  EvalsConfig  `koanf:"evals"`
}

// OpenAIConfig configures the embedding provider.
type OpenAIConfig struct {
	APIKey         string `koanf:"api_key"`
	BaseURL        string `koanf:"base_url"`
	EmbeddingModel string `koanf:"embedding_model"`
}

// EvalsConfig locates the harness' on-disk state.
type EvalsConfig struct {
	DatasetDir   string `koanf:"dataset_dir"`
	ReposDir     string `koanf:"repos_dir"`
	IndexDir     string `koanf:"index_dir"`
	LogLevel     string `koanf:"log_level"`
	FetchWorkers int    `koanf:"fetch_workers"`
}

// Load reads configuration from environment variables.
//
// Only OPENAI_* and EVALS_* variables are considered. The first underscore
// separates section from field:
//
//	OPENAI_API_KEY     -> openai.api_key
//	EVALS_REPOS_DIR    -> evals.repos_dir
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps a variable name to a koanf key; "" drops the variable.
func envKey(s string) string {
	lower := strings.ToLower(s)
	section, field, ok := strings.Cut(lower, "_")
	if !ok || field == "" {
		return ""
	}
	switch section {
	case "openai", "evals":
		return section + "." + field
	default:
		return ""
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Evals.DatasetDir == "" {
		cfg.Evals.DatasetDir = DefaultDatasetDir
	}
	if cfg.Evals.ReposDir == "" {
		cfg.Evals.ReposDir = DefaultReposDir
	}
	if cfg.Evals.IndexDir == "" {
		cfg.Evals.IndexDir = DefaultIndexDir
	}
	if cfg.Evals.LogLevel == "" {
		cfg.Evals.LogLevel = DefaultLogLevel
	}
	if cfg.Evals.FetchWorkers == 0 {
		cfg.Evals.FetchWorkers = DefaultFetchWorkers
	}
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if c.Evals.FetchWorkers < 1 {
		return fmt.Errorf("EVALS_FETCH_WORKERS must be positive, got %d", c.Evals.FetchWorkers)
	}
	if _, err := zapcore.ParseLevel(c.Evals.LogLevel); err != nil {
		return fmt.Errorf("EVALS_LOG_LEVEL: %w", err)
	}
	return nil
}

// RequireAPIKey fails when no OpenAI key is configured. Only commands that
// embed need it.
func (c *Config) RequireAPIKey() error {
	if c.OpenAI.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// AnnotationsPath is the cached copy of the raw annotation CSV.
func (c *Config) AnnotationsPath() string {
	return filepath.Join(c.Evals.DatasetDir, "annotations.csv")
}

// EvaluationsPath is the normalized dataset.
func (c *Config) EvaluationsPath() string {
	return filepath.Join(c.Evals.DatasetDir, "evaluations.json")
}
