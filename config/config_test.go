package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Thresholds.AutoApply != 0.9 {
		t.Errorf("expected default auto_apply 0.9, got %f", cfg.Thresholds.AutoApply)
	}
	if cfg.Thresholds.Review != 0.7 {
		t.Errorf("expected default review 0.7, got %f", cfg.Thresholds.Review)
	}
	if cfg.Execution.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Execution.MaxRetries)
	}
	if cfg.Execution.GetInitialBackoff() != 15*time.Second {
		t.Errorf("expected default initial backoff 15s, got %v", cfg.Execution.GetInitialBackoff())
	}
	if cfg.Flaky.Threshold != 0.4 {
		t.Errorf("expected default flaky threshold 0.4, got %f", cfg.Flaky.Threshold)
	}
	if cfg.Flaky.QuarantineWindow != 10 {
		t.Errorf("expected default quarantine window 10, got %d", cfg.Flaky.QuarantineWindow)
	}
	if !cfg.NATS.Embedded {
		t.Error("expected embedded NATS by default")
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
			name:    "auto apply above one",
			modify:  func(c *Config) { c.Thresholds.AutoApply = 1.1 },
			wantErr: true,
		},
		{
			name:    "review below zero",
			modify:  func(c *Config) { c.Thresholds.Review = -0.1 },
			wantErr: true,
		},
		{
			name: "review above auto apply",
			modify: func(c *Config) {
				c.Thresholds.Review = 0.95
				c.Thresholds.AutoApply = 0.9
			},
			wantErr: true,
		},
		{
			name:    "negative max retries",
			modify:  func(c *Config) { c.Execution.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "zero worker concurrency",
			modify:  func(c *Config) { c.Execution.WorkerConcurrency = 0 },
			wantErr: true,
		},
		{
			name:    "quarantine window too small",
			modify:  func(c *Config) { c.Flaky.QuarantineWindow = 1 },
			wantErr: true,
		},
		{
			name:    "zero fix attempts",
			modify:  func(c *Config) { c.Fix.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "missing data dir",
			modify:  func(c *Config) { c.Paths.DataDir = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
project: storefront
thresholds:
  auto_apply: 0.95
  review: 0.75
execution:
  max_retries: 2
  worker_concurrency: 8
  scenario_timeout: 90s
flaky:
  threshold: 0.5
  quarantine_window: 20
nats:
  url: "nats://test:4222"
advisory_capabilities:
  - accessibility
  - visual
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Project != "storefront" {
		t.Errorf("expected project storefront, got %s", cfg.Project)
	}
	if cfg.Thresholds.AutoApply != 0.95 {
		t.Errorf("expected auto_apply 0.95, got %f", cfg.Thresholds.AutoApply)
	}
	if cfg.Execution.WorkerConcurrency != 8 {
		t.Errorf("expected worker_concurrency 8, got %d", cfg.Execution.WorkerConcurrency)
	}
	if cfg.Execution.GetScenarioTimeout() != 90*time.Second {
		t.Errorf("expected scenario timeout 90s, got %v", cfg.Execution.GetScenarioTimeout())
	}
	if cfg.Flaky.QuarantineWindow != 20 {
		t.Errorf("expected quarantine window 20, got %d", cfg.Flaky.QuarantineWindow)
	}
	if cfg.NATS.URL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.NATS.URL)
	}
	if len(cfg.AdvisoryCapabilities) != 2 {
		t.Errorf("expected 2 advisory capabilities, got %d", len(cfg.AdvisoryCapabilities))
	}
	// Fields absent from the file keep their defaults
	if cfg.Fix.MaxAttempts != 2 {
		t.Errorf("expected default fix max_attempts 2, got %d", cfg.Fix.MaxAttempts)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Project: "override-project",
		Thresholds: ThresholdsConfig{
			AutoApply: 0.95,
		},
		Execution: ExecutionConfig{
			WorkerConcurrency: 16,
		},
	}

	base.Merge(override)

	if base.Project != "override-project" {
		t.Errorf("expected project override-project, got %s", base.Project)
	}
	if base.Thresholds.AutoApply != 0.95 {
		t.Errorf("expected auto_apply 0.95, got %f", base.Thresholds.AutoApply)
	}
	// Review should remain from base since override didn't set it
	if base.Thresholds.Review != 0.7 {
		t.Errorf("expected review to remain default, got %f", base.Thresholds.Review)
	}
	if base.Execution.WorkerConcurrency != 16 {
		t.Errorf("expected worker_concurrency 16, got %d", base.Execution.WorkerConcurrency)
	}
	if base.Execution.MaxRetries != 3 {
		t.Errorf("expected max_retries to remain default, got %d", base.Execution.MaxRetries)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Project = "saved-project"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	// Load and verify
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Project != "saved-project" {
		t.Errorf("expected project saved-project, got %s", loaded.Project)
	}
}

func TestDurationGetters_Fallbacks(t *testing.T) {
	cfg := ExecutionConfig{
		ScenarioTimeout: "not-a-duration",
		InitialBackoff:  "-5s",
		MaxBackoff:      "",
	}

	if got := cfg.GetScenarioTimeout(); got != 2*time.Minute {
		t.Errorf("invalid scenario_timeout should fall back to 2m, got %v", got)
	}
	if got := cfg.GetInitialBackoff(); got != 15*time.Second {
		t.Errorf("negative initial_backoff should fall back to 15s, got %v", got)
	}
	if got := cfg.GetMaxBackoff(); got != 2*time.Minute {
		t.Errorf("empty max_backoff should fall back to 2m, got %v", got)
	}
}
