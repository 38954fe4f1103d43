// Package config loads the YAML configuration shared by the CLI and the
// server. Every field has a default, so running without a file works.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"promptarena/embedding"
	"promptarena/llm"
	"promptarena/similarity"
	"promptarena/utils"
)

// Config is the root of the configuration file
type Config struct {
	Scoring   ScoringConfig   `yaml:"scoring"`
	LLM       llm.Config      `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ScoringConfig selects the metric and blend used by the games and commands.
// Empty weights mean similarity.DefaultWeights.
type ScoringConfig struct {
	Metric   string             `yaml:"metric"`
	Weights  map[string]float64 `yaml:"weights"`
	Parallel bool               `yaml:"parallel"`
}

type EmbeddingConfig struct {
	Enabled          bool `yaml:"enabled"`
	embedding.Config `yaml:",inline"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	File  string `yaml:"file"`
	Debug bool   `yaml:"debug"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Scoring: ScoringConfig{
			Metric:   similarity.MetricCombined.String(),
			Parallel: true,
		},
		LLM:      llm.DefaultConfig(),
		Database: DatabaseConfig{Path: utils.GetDefaultDatabasePath()},
		Server:   ServerConfig{Address: ":8080"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the scoring section and the embedding paths
func (c Config) Validate() error {
	if _, err := c.Scoring.ParsedMetric(); err != nil {
		return err
	}
	if _, err := c.Scoring.ParsedWeights(); err != nil {
		return err
	}
	if c.Embedding.Enabled && (c.Embedding.TextModelPath == "" || c.Embedding.VisionModelPath == "" || c.Embedding.TokenizerPath == "") {
		return errors.New("embedding is enabled but model or tokenizer paths are missing")
	}
	return nil
}

// ParsedMetric returns the configured metric
func (s ScoringConfig) ParsedMetric() (similarity.Metric, error) {
	return similarity.ParseMetric(s.Metric)
}

// ParsedWeights converts the weight table. It returns nil when no weights
// are configured.
func (s ScoringConfig) ParsedWeights() (similarity.Weights, error) {
	if len(s.Weights) == 0 {
		return nil, nil
	}
	w := make(similarity.Weights, len(s.Weights))
	for name, v := range s.Weights {
		m, err := similarity.ParseMetric(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", similarity.ErrInvalidWeights, err)
		}
		w[m] = v
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// NewScorer builds a scorer from the scoring section
func (s ScoringConfig) NewScorer(opts ...similarity.Option) (*similarity.Scorer, error) {
	w, err := s.ParsedWeights()
	if err != nil {
		return nil, err
	}
	all := []similarity.Option{similarity.WithParallel(s.Parallel)}
	if w != nil {
		all = append(all, similarity.WithWeights(w))
	}
	return similarity.NewScorer(append(all, opts...)...)
}

// EmbeddingHandle returns a lazily built CLIP handle, or a disabled one
func (e EmbeddingConfig) EmbeddingHandle() *embedding.Handle {
	if !e.Enabled {
		return embedding.DisabledHandle()
	}
	return embedding.NewCLIPHandle(e.Config)
}
