// Package config handles message hub configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/msghub/config.yaml, /config/config.yaml,
// /etc/msghub/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "msghub", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/msghub/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all statically-loaded message hub configuration. This is
// distinct from the runtime-normalized views (Effective/Public, see
// effective.go) that plugins and the admin surface actually consume —
// Config is what YAML unmarshals into; Normalize() turns it into those.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
	QuietHours *QuietHoursConfig `yaml:"quiet_hours"`
	Render     RenderConfig     `yaml:"render"`
	Archive    ArchiveConfig    `yaml:"archive"`
	AI         AIConfig         `yaml:"ai"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// QuietHoursConfig configures the notification scheduler's quiet-hours
// gating window.
type QuietHoursConfig struct {
	StartMin int `yaml:"start_min"`
	EndMin   int `yaml:"end_min"`
	MaxLevel int `yaml:"max_level"`
	SpreadMs int `yaml:"spread_ms"`
}

// RenderConfig configures how notification text is templated for sinks.
type RenderConfig struct {
	Prefixes  map[string]string `yaml:"prefixes"`
	Templates map[string]string `yaml:"templates"`
}

// ArchiveConfig configures the archive/journal backend.
type ArchiveConfig struct {
	// StrategyLock is the configured backend preference: "native" or "iobroker".
	StrategyLock     string `yaml:"strategy_lock"`
	BaseDir          string `yaml:"base_dir"`
	FileExtension    string `yaml:"file_extension"`
	KeepPreviousWeeks int   `yaml:"keep_previous_weeks"`
}

// AIConfig configures an optional AI-assisted summarization facility
// exposed to plugins via the `ai` capability façade.
type AIConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Provider string         `yaml:"provider"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
}

// OpenAIConfig carries secrets (APIKey, BaseURL) that MUST be stripped from
// the plugin-public configuration view.
type OpenAIConfig struct {
	APIKey          string            `yaml:"api_key"`
	BaseURL         string            `yaml:"base_url"`
	ModelsByQuality map[string]string `yaml:"models_by_quality"`
}

// SchedulerConfig configures the notification scheduler's tick loop.
type SchedulerConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`
}

// Configured reports whether the AI facility has everything it needs to run.
func (c AIConfig) Configured() bool {
	return c.Enabled && c.OpenAI.APIKey != ""
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${DATA_DIR}, ${OPENAI_API_KEY}).
	// This is a convenience for container deployments; the recommended
	// approach is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Archive.StrategyLock == "" {
		c.Archive.StrategyLock = "native"
	}
	if c.Archive.BaseDir == "" {
		c.Archive.BaseDir = filepath.Join(c.DataDir, "archive")
	}
	if c.Archive.FileExtension == "" {
		c.Archive.FileExtension = "jsonl"
	}
	if c.Archive.KeepPreviousWeeks == 0 {
		c.Archive.KeepPreviousWeeks = 4
	}
	if c.Scheduler.TickIntervalMs == 0 {
		c.Scheduler.TickIntervalMs = 2000
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Scheduler.TickIntervalMs < 0 {
		return fmt.Errorf("scheduler.tick_interval_ms must be >= 0")
	}
	if c.Archive.StrategyLock != "native" && c.Archive.StrategyLock != "iobroker" {
		return fmt.Errorf("archive.strategy_lock must be %q or %q, got %q", "native", "iobroker", c.Archive.StrategyLock)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if q := c.QuietHours; q != nil {
		if q.StartMin < 0 || q.StartMin >= 1440 || q.EndMin < 0 || q.EndMin >= 1440 {
			return fmt.Errorf("quiet_hours.start_min/end_min must be within [0,1440)")
		}
	}
	return nil
}

// Default returns a default configuration suitable for local development.
// All defaults are already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
