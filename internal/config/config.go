// internal/config/config.go

// Package config loads the run configuration: which mode to run in,
// where the target registry and database live, and how much
// parallelism and wall-clock time a run may use. Configuration is
// YAML with environment variable substitution, so deployments can
// keep credentials out of the file.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Run modes. Weekly is the scheduled full pass; backup retries only
// targets the last run failed on; test runs a handful of proven
// targets to verify a deployment.
const (
	ModeWeekly = "weekly"
	ModeBackup = "backup"
	ModeTest   = "test"
)

// Config is the top-level run configuration
type Config struct {
	Mode        string        `yaml:"mode" json:"mode"`
	TargetsFile string        `yaml:"targets_file" json:"targets_file"`
	DatabaseDSN string        `yaml:"database_dsn" json:"database_dsn"`
	StateDir    string        `yaml:"state_dir" json:"state_dir"`
	LogLevel    string        `yaml:"log_level" json:"log_level"`
	Parallelism int           `yaml:"parallelism" json:"parallelism"`
	MaxTargets  int           `yaml:"max_targets" json:"max_targets"`
	MaxDuration time.Duration `yaml:"max_duration" json:"max_duration"`

	RespectRobots bool `yaml:"respect_robots" json:"respect_robots"`

	Browser BrowserConfig `yaml:"browser" json:"browser"`
	OCR     OCRConfig     `yaml:"ocr" json:"ocr"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// BrowserConfig controls the headless browser path. The zero value
// is the scheduled-run setup: headless, no image loading. Headed and
// LoadImages are debug switches.
type BrowserConfig struct {
	Headed     bool `yaml:"headed" json:"headed"`
	LoadImages bool `yaml:"load_images" json:"load_images"`
}

// OCRConfig controls the OCR engine chain
type OCRConfig struct {
	ScriptDir string `yaml:"script_dir" json:"script_dir"`
}

// MetricsConfig controls the optional Prometheus endpoint
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
	Path          string `yaml:"path" json:"path"`
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration filename cannot be empty")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes
func LoadFromBytes(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("configuration data cannot be empty")
	}

	// Substitute environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %w", err)
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadFromReader loads configuration from an io.Reader
func LoadFromReader(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read from reader: %w", err)
	}

	return LoadFromBytes(data)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

// applyDefaults applies default values to the configuration
func applyDefaults(config *Config) {
	if config.Mode == "" {
		config.Mode = ModeWeekly
	}
	if config.TargetsFile == "" {
		config.TargetsFile = "targets.yaml"
	}
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = "gigs.db"
	}
	if config.StateDir == "" {
		config.StateDir = "state"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Parallelism == 0 {
		config.Parallelism = 4
	}
	if config.MaxDuration == 0 {
		config.MaxDuration = 2 * time.Hour
	}
	if config.OCR.ScriptDir == "" {
		config.OCR.ScriptDir = "scripts/ocr"
	}
	if config.Metrics.ListenAddress == "" {
		config.Metrics.ListenAddress = ":9090"
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeWeekly, ModeBackup, ModeTest:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism)
	}
	if c.MaxTargets < 0 {
		return fmt.Errorf("max_targets cannot be negative, got %d", c.MaxTargets)
	}
	if c.MaxDuration < time.Minute {
		return fmt.Errorf("max_duration %s is too short for a run", c.MaxDuration)
	}

	return nil
}
