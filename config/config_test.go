package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.Provider != "openai" {
		t.Errorf("expected default provider openai, got %s", cfg.Model.Provider)
	}
	if cfg.Model.Temperature != 0.2 {
		t.Errorf("expected default temperature 0.2, got %f", cfg.Model.Temperature)
	}
	if cfg.Analysis.MaxPages != 10 {
		t.Errorf("expected default max_pages 10, got %d", cfg.Analysis.MaxPages)
	}
	if cfg.Analysis.MaxTokensPerBatch != 10000 {
		t.Errorf("expected default max_tokens_per_batch 10000, got %d", cfg.Analysis.MaxTokensPerBatch)
	}
	if cfg.Analysis.MaxParallelBatches != 3 {
		t.Errorf("expected default max_parallel_batches 3, got %d", cfg.Analysis.MaxParallelBatches)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing provider",
			modify:  func(c *Config) { c.Model.Provider = "" },
			wantErr: true,
		},
		{
			name:    "missing model name",
			modify:  func(c *Config) { c.Model.Name = "" },
			wantErr: true,
		},
		{
			name:    "temperature too low",
			modify:  func(c *Config) { c.Model.Temperature = -0.1 },
			wantErr: true,
		},
		{
			name:    "temperature too high",
			modify:  func(c *Config) { c.Model.Temperature = 1.1 },
			wantErr: true,
		},
		{
			name:    "non-positive max pages",
			modify:  func(c *Config) { c.Analysis.MaxPages = 0 },
			wantErr: true,
		},
		{
			name:    "non-positive token budget",
			modify:  func(c *Config) { c.Analysis.MaxTokensPerBatch = -1 },
			wantErr: true,
		},
		{
			name:    "non-positive parallelism",
			modify:  func(c *Config) { c.Analysis.MaxParallelBatches = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compliscan.yaml")

	content := `
model:
  provider: anthropic
  name: claude-sonnet-4-20250514
  temperature: 0.1
  timeout: 90s
analysis:
  max_pages: 20
  max_tokens_per_batch: 12000
nats:
  url: nats://nats.internal:4222
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Model.Provider != "anthropic" {
		t.Errorf("expected provider anthropic, got %s", cfg.Model.Provider)
	}
	if cfg.Model.Timeout != 90*time.Second {
		t.Errorf("expected timeout 90s, got %s", cfg.Model.Timeout)
	}
	if cfg.Analysis.MaxPages != 20 {
		t.Errorf("expected max_pages 20, got %d", cfg.Analysis.MaxPages)
	}
	if cfg.Analysis.MaxTokensPerBatch != 12000 {
		t.Errorf("expected max_tokens_per_batch 12000, got %d", cfg.Analysis.MaxTokensPerBatch)
	}
	// Unset fields keep defaults
	if cfg.Analysis.MaxParallelBatches != 3 {
		t.Errorf("expected default max_parallel_batches 3, got %d", cfg.Analysis.MaxParallelBatches)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{}
	override.Model.Name = "gpt-4o"
	override.Analysis.MaxTotalFindings = 25
	override.NATS.URL = "nats://other:4222"

	base.Merge(override)

	if base.Model.Name != "gpt-4o" {
		t.Errorf("expected merged model name gpt-4o, got %s", base.Model.Name)
	}
	if base.Model.Provider != "openai" {
		t.Errorf("expected provider preserved, got %s", base.Model.Provider)
	}
	if base.Analysis.MaxTotalFindings != 25 {
		t.Errorf("expected merged max_total_findings 25, got %d", base.Analysis.MaxTotalFindings)
	}
	if base.NATS.URL != "nats://other:4222" {
		t.Errorf("expected merged NATS URL, got %s", base.NATS.URL)
	}
}

func TestLoadFromFileMissingKeepsNotExist(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}
}
