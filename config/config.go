// Package config provides configuration loading and management for the UAT
// gateway. The loaded Config is immutable by convention: the control loop and
// auto-fix engine receive it at construction and never observe later changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete UAT gateway configuration.
type Config struct {
	// Project identifies the product under test; trigger idempotency is scoped
	// to it (auto-detected from the git root basename if empty)
	Project string `yaml:"project"`

	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Flaky      FlakyConfig      `yaml:"flaky"`
	Fix        FixConfig        `yaml:"fix"`
	Paths      PathsConfig      `yaml:"paths"`
	NATS       NATSConfig       `yaml:"nats"`
	Watch      WatchConfig      `yaml:"watch"`

	// AdvisoryCapabilities lists adapter capabilities whose failures attach as
	// advisories instead of failing the scenario (e.g. accessibility)
	AdvisoryCapabilities []string `yaml:"advisory_capabilities"`
}

// ThresholdsConfig holds the confidence gates for the auto-fix engine.
type ThresholdsConfig struct {
	// AutoApply is the confidence at or above which fixes apply automatically
	AutoApply float64 `yaml:"auto_apply"`
	// Review is the confidence at or above which fixes apply but await human
	// confirmation; below it no artifact is touched and a blocker is raised
	Review float64 `yaml:"review"`
}

// ExecutionConfig configures the test executor worker pool.
type ExecutionConfig struct {
	// MaxRetries is the retry ceiling per scenario × adapter unit
	MaxRetries int `yaml:"max_retries"`
	// WorkerConcurrency bounds parallel scenario × adapter units
	WorkerConcurrency int `yaml:"worker_concurrency"`
	// ScenarioTimeout is the per-unit deadline (duration string, e.g. "2m")
	ScenarioTimeout string `yaml:"scenario_timeout"`
	// InitialBackoff is the first retry delay (duration string, e.g. "15s")
	InitialBackoff string `yaml:"initial_backoff"`
	// MaxBackoff caps the exponential retry delay (duration string)
	MaxBackoff string `yaml:"max_backoff"`
}

// GetScenarioTimeout returns the per-unit deadline.
// Returns default 2m if parsing fails.
func (c *ExecutionConfig) GetScenarioTimeout() time.Duration {
	if c.ScenarioTimeout == "" {
		return 2 * time.Minute
	}
	d, err := time.ParseDuration(c.ScenarioTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// GetInitialBackoff returns the first retry delay.
// Returns default 15s if parsing fails.
func (c *ExecutionConfig) GetInitialBackoff() time.Duration {
	if c.InitialBackoff == "" {
		return 15 * time.Second
	}
	d, err := time.ParseDuration(c.InitialBackoff)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// GetMaxBackoff returns the retry delay cap.
// Returns default 2m if parsing fails.
func (c *ExecutionConfig) GetMaxBackoff() time.Duration {
	if c.MaxBackoff == "" {
		return 2 * time.Minute
	}
	d, err := time.ParseDuration(c.MaxBackoff)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// FlakyConfig configures the flaky detector.
type FlakyConfig struct {
	// Threshold is the flaky score above which a scenario is quarantined
	Threshold float64 `yaml:"threshold"`
	// QuarantineWindow is the rolling outcome window length per scenario
	QuarantineWindow int `yaml:"quarantine_window"`
	// LiftStreak is how many consecutive below-threshold updates lift quarantine
	LiftStreak int `yaml:"lift_streak"`
}

// FixConfig configures the auto-fix engine.
type FixConfig struct {
	// MaxAttempts bounds fix attempts per scenario per run to prevent oscillation
	MaxAttempts int `yaml:"max_attempts"`
}

// PathsConfig configures filesystem locations.
type PathsConfig struct {
	// DataDir is the gateway state directory (default: .uatgate)
	DataDir string `yaml:"data_dir"`
	// Spec is the specification document to extract journeys from
	Spec string `yaml:"spec"`
	// Artifacts is where generated test artifacts are written
	Artifacts string `yaml:"artifacts"`
	// Baselines is where visual regression baseline images live
	Baselines string `yaml:"baselines"`
	// DependencyMap is the scenario → code path glob map for selective runs
	DependencyMap string `yaml:"dependency_map"`
	// Rules is an optional extraction rule table overriding the built-in set
	Rules string `yaml:"rules"`
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
}

// WatchConfig configures the filesystem watcher for selective runs.
type WatchConfig struct {
	// Roots are the directories watched for code changes
	Roots []string `yaml:"roots"`
	// Debounce is how long to coalesce change events (duration string)
	Debounce string `yaml:"debounce"`
}

// GetDebounce returns the watch debounce interval.
// Returns default 2s if parsing fails.
func (c *WatchConfig) GetDebounce() time.Duration {
	if c.Debounce == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(c.Debounce)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Thresholds: ThresholdsConfig{
			AutoApply: 0.9,
			Review:    0.7,
		},
		Execution: ExecutionConfig{
			MaxRetries:        3,
			WorkerConcurrency: 4,
			ScenarioTimeout:   "2m",
			InitialBackoff:    "15s",
			MaxBackoff:        "2m",
		},
		Flaky: FlakyConfig{
			Threshold:        0.4,
			QuarantineWindow: 10,
			LiftStreak:       3,
		},
		Fix: FixConfig{
			MaxAttempts: 2,
		},
		Paths: PathsConfig{
			DataDir:       ".uatgate",
			Artifacts:     filepath.Join(".uatgate", "artifacts"),
			Baselines:     filepath.Join(".uatgate", "baselines"),
			DependencyMap: filepath.Join(".uatgate", "depmap.yaml"),
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Watch: WatchConfig{
			Roots:    nil,
			Debounce: "2s",
		},
		AdvisoryCapabilities: []string{"accessibility"},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Thresholds.AutoApply < 0 || c.Thresholds.AutoApply > 1 {
		return fmt.Errorf("thresholds.auto_apply must be between 0 and 1")
	}
	if c.Thresholds.Review < 0 || c.Thresholds.Review > 1 {
		return fmt.Errorf("thresholds.review must be between 0 and 1")
	}
	if c.Thresholds.Review > c.Thresholds.AutoApply {
		return fmt.Errorf("thresholds.review must not exceed thresholds.auto_apply")
	}
	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("execution.max_retries must not be negative")
	}
	if c.Execution.WorkerConcurrency < 1 {
		return fmt.Errorf("execution.worker_concurrency must be at least 1")
	}
	if c.Flaky.Threshold < 0 || c.Flaky.Threshold > 1 {
		return fmt.Errorf("flaky.threshold must be between 0 and 1")
	}
	if c.Flaky.QuarantineWindow < 2 {
		return fmt.Errorf("flaky.quarantine_window must be at least 2")
	}
	if c.Flaky.LiftStreak < 1 {
		return fmt.Errorf("flaky.lift_streak must be at least 1")
	}
	if c.Fix.MaxAttempts < 1 {
		return fmt.Errorf("fix.max_attempts must be at least 1")
	}
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir is required")
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
	// Ensure parent directory exists
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

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Project != "" {
		c.Project = other.Project
	}

	// Thresholds
	if other.Thresholds.AutoApply != 0 {
		c.Thresholds.AutoApply = other.Thresholds.AutoApply
	}
	if other.Thresholds.Review != 0 {
		c.Thresholds.Review = other.Thresholds.Review
	}

	// Execution
	if other.Execution.MaxRetries != 0 {
		c.Execution.MaxRetries = other.Execution.MaxRetries
	}
	if other.Execution.WorkerConcurrency != 0 {
		c.Execution.WorkerConcurrency = other.Execution.WorkerConcurrency
	}
	if other.Execution.ScenarioTimeout != "" {
		c.Execution.ScenarioTimeout = other.Execution.ScenarioTimeout
	}
	if other.Execution.InitialBackoff != "" {
		c.Execution.InitialBackoff = other.Execution.InitialBackoff
	}
	if other.Execution.MaxBackoff != "" {
		c.Execution.MaxBackoff = other.Execution.MaxBackoff
	}

	// Flaky
	if other.Flaky.Threshold != 0 {
		c.Flaky.Threshold = other.Flaky.Threshold
	}
	if other.Flaky.QuarantineWindow != 0 {
		c.Flaky.QuarantineWindow = other.Flaky.QuarantineWindow
	}
	if other.Flaky.LiftStreak != 0 {
		c.Flaky.LiftStreak = other.Flaky.LiftStreak
	}

	// Fix
	if other.Fix.MaxAttempts != 0 {
		c.Fix.MaxAttempts = other.Fix.MaxAttempts
	}

	// Paths
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Paths.Spec != "" {
		c.Paths.Spec = other.Paths.Spec
	}
	if other.Paths.Artifacts != "" {
		c.Paths.Artifacts = other.Paths.Artifacts
	}
	if other.Paths.Baselines != "" {
		c.Paths.Baselines = other.Paths.Baselines
	}
	if other.Paths.DependencyMap != "" {
		c.Paths.DependencyMap = other.Paths.DependencyMap
	}
	if other.Paths.Rules != "" {
		c.Paths.Rules = other.Paths.Rules
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	// Watch
	if len(other.Watch.Roots) > 0 {
		c.Watch.Roots = other.Watch.Roots
	}
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	// Advisory capabilities
	if len(other.AdvisoryCapabilities) > 0 {
		c.AdvisoryCapabilities = other.AdvisoryCapabilities
	}
}
