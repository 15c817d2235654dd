// Package config provides configuration loading and management for compliscan.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete compliscan configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Analysis AnalysisConfig `yaml:"analysis"`
	NATS     NATSConfig     `yaml:"nats"`
	Controls ControlsConfig `yaml:"controls"`
	Server   ServerConfig   `yaml:"server"`
}

// ModelConfig configures the LLM endpoint used for finding generation.
type ModelConfig struct {
	// Provider selects the LLM provider adapter ("openai", "anthropic", "ollama").
	Provider string `yaml:"provider"`
	// Endpoint is the provider base URL (empty = provider default).
	Endpoint string `yaml:"endpoint"`
	// Name is the model identifier (e.g. "gpt-4o-mini").
	Name string `yaml:"name"`
	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature"`
	// Timeout is the maximum time to wait for a single model response.
	Timeout time.Duration `yaml:"timeout"`
}

// AnalysisConfig bounds the cost and output size of one analysis run.
type AnalysisConfig struct {
	// MaxPages limits how many pages of a document are extracted.
	MaxPages int `yaml:"max_pages"`
	// MaxTokensPerBatch is the per-batch token budget for model calls.
	MaxTokensPerBatch int `yaml:"max_tokens_per_batch"`
	// MaxParallelBatches bounds concurrent in-flight model calls.
	MaxParallelBatches int `yaml:"max_parallel_batches"`
	// MaxFindingsPerBatch caps findings accepted from one model call.
	MaxFindingsPerBatch int `yaml:"max_findings_per_batch"`
	// MaxAnnotationsPerPage caps findings retained per page.
	MaxAnnotationsPerPage int `yaml:"max_annotations_per_page"`
	// MaxTotalFindings caps findings retained across the whole document.
	MaxTotalFindings int `yaml:"max_total_findings"`
}

// NATSConfig configures the NATS connection used for storage.
type NATSConfig struct {
	// URL is the NATS server URL.
	URL string `yaml:"url"`
}

// ControlsConfig configures the file-based controls repository.
type ControlsConfig struct {
	// Dir is the directory holding framework control files.
	Dir string `yaml:"dir"`
	// Pattern is the doublestar glob matched under Dir.
	Pattern string `yaml:"pattern"`
	// Watch enables hot-reload of control files.
	Watch bool `yaml:"watch"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Addr is the listen address for the HTTP API.
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:    "openai",
			Endpoint:    "",
			Name:        "gpt-4o-mini",
			Temperature: 0.2,
			Timeout:     2 * time.Minute,
		},
		Analysis: AnalysisConfig{
			MaxPages:              10,
			MaxTokensPerBatch:     10000,
			MaxParallelBatches:    3,
			MaxFindingsPerBatch:   5,
			MaxAnnotationsPerPage: 3,
			MaxTotalFindings:      15,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Controls: ControlsConfig{
			Dir:     "data/controls",
			Pattern: "**/*.yaml",
			Watch:   false,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Model.Provider == "" {
		return fmt.Errorf("model.provider is required")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	if c.Analysis.MaxPages <= 0 {
		return fmt.Errorf("analysis.max_pages must be positive")
	}
	if c.Analysis.MaxTokensPerBatch <= 0 {
		return fmt.Errorf("analysis.max_tokens_per_batch must be positive")
	}
	if c.Analysis.MaxParallelBatches <= 0 {
		return fmt.Errorf("analysis.max_parallel_batches must be positive")
	}
	if c.Analysis.MaxAnnotationsPerPage <= 0 {
		return fmt.Errorf("analysis.max_annotations_per_page must be positive")
	}
	if c.Analysis.MaxTotalFindings <= 0 {
		return fmt.Errorf("analysis.max_total_findings must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Model.Provider != "" {
		c.Model.Provider = other.Model.Provider
	}
	if other.Model.Endpoint != "" {
		c.Model.Endpoint = other.Model.Endpoint
	}
	if other.Model.Name != "" {
		c.Model.Name = other.Model.Name
	}
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}

	if other.Analysis.MaxPages != 0 {
		c.Analysis.MaxPages = other.Analysis.MaxPages
	}
	if other.Analysis.MaxTokensPerBatch != 0 {
		c.Analysis.MaxTokensPerBatch = other.Analysis.MaxTokensPerBatch
	}
	if other.Analysis.MaxParallelBatches != 0 {
		c.Analysis.MaxParallelBatches = other.Analysis.MaxParallelBatches
	}
	if other.Analysis.MaxFindingsPerBatch != 0 {
		c.Analysis.MaxFindingsPerBatch = other.Analysis.MaxFindingsPerBatch
	}
	if other.Analysis.MaxAnnotationsPerPage != 0 {
		c.Analysis.MaxAnnotationsPerPage = other.Analysis.MaxAnnotationsPerPage
	}
	if other.Analysis.MaxTotalFindings != 0 {
		c.Analysis.MaxTotalFindings = other.Analysis.MaxTotalFindings
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	if other.Controls.Dir != "" {
		c.Controls.Dir = other.Controls.Dir
	}
	if other.Controls.Pattern != "" {
		c.Controls.Pattern = other.Controls.Pattern
	}
	if other.Controls.Watch {
		c.Controls.Watch = true
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
}
