// Package config loads the orchestrator's process-wide defaults: the
// default throttle capacity, default batch parallelism, and default
// per-operation timeout. Everything else — a workflow's own step
// definitions — is supplied by the caller at the call site, not through
// this package.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	taskerrors "github.com/corelane/taskcore/pkg/errors"
)

// Config holds the core's process-wide defaults.
type Config struct {
	// ThrottleCapacity is the default Throttle capacity new Orchestrators
	// are constructed with.
	ThrottleCapacity int `yaml:"throttle_capacity"`

	// BatchMaxParallelism is the default BatchExecutor max_parallelism. A
	// value of 0 means "available parallelism of host".
	BatchMaxParallelism int `yaml:"batch_max_parallelism"`

	// BatchPerOpTimeout is the default per-operation timeout applied to
	// batch runs. Zero means no timeout.
	BatchPerOpTimeout time.Duration `yaml:"batch_per_op_timeout"`

	Log LogConfig `yaml:"log"`
}

// LogConfig mirrors internal/log's Config, duplicated here only as the
// YAML surface; internal/config never imports internal/log to avoid a
// dependency cycle with callers that import both.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns the built-in defaults used when no file and no
// environment override is present.
func Default() *Config {
	return &Config{
		ThrottleCapacity:    8,
		BatchMaxParallelism: 0,
		BatchPerOpTimeout:   0,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file (if path is non-empty),
// applies defaults to any zero-valued fields, and then applies
// environment variable overrides. Environment variables always take
// precedence over file-based configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &taskerrors.ConfigError{Key: "config_file", Reason: "failed to read " + path, Cause: err}
		}
		fromFile := &Config{}
		if err := yaml.Unmarshal(data, fromFile); err != nil {
			return nil, &taskerrors.ConfigError{Key: "config_file", Reason: "failed to parse " + path, Cause: err}
		}
		cfg.applyFrom(fromFile)
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFrom overlays non-zero fields from other onto c.
func (c *Config) applyFrom(other *Config) {
	if other.ThrottleCapacity != 0 {
		c.ThrottleCapacity = other.ThrottleCapacity
	}
	if other.BatchMaxParallelism != 0 {
		c.BatchMaxParallelism = other.BatchMaxParallelism
	}
	if other.BatchPerOpTimeout != 0 {
		c.BatchPerOpTimeout = other.BatchPerOpTimeout
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
	if other.Log.AddSource {
		c.Log.AddSource = other.Log.AddSource
	}
}

// loadFromEnv overrides c's fields from TASKCORE_* environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("TASKCORE_THROTTLE_CAPACITY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.ThrottleCapacity = n
		}
	}
	if val := os.Getenv("TASKCORE_BATCH_MAX_PARALLELISM"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.BatchMaxParallelism = n
		}
	}
	if val := os.Getenv("TASKCORE_BATCH_PER_OP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.BatchPerOpTimeout = d
		}
	}
	if val := os.Getenv("TASKCORE_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("TASKCORE_LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
}

func (c *Config) validate() error {
	if c.ThrottleCapacity <= 0 {
		return &taskerrors.ValidationError{
			Field:      "throttle_capacity",
			Message:    "must be a positive integer",
			Suggestion: "set throttle_capacity in the config file or TASKCORE_THROTTLE_CAPACITY",
		}
	}
	if c.BatchMaxParallelism < 0 {
		return &taskerrors.ValidationError{
			Field:   "batch_max_parallelism",
			Message: "must be zero (host default) or a positive integer",
		}
	}
	return nil
}
