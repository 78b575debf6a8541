// Package config loads sandboxd's process-level configuration: default
// resource limits, the guest interpreter override, the temp-directory
// override, and logging settings. This is ambient configuration, not
// part of the evaluate(code, limits) operation itself — limits passed
// explicitly by a caller always win over these defaults. Grounded on
// the teacher's internal/config package shape (DefaultConfig, Load,
// applyEnvOverrides over a YAML file), rewritten around this service's
// own fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/sandboxd/internal/sandbox"
)

// LoggingConfig holds the logging settings read from YAML (and, for the
// level, SANDBOXD_LOG_LEVEL). cmd/sandboxd loads them but does not apply
// them: its zap logger uses zap's production config, switched to debug
// level only by --verbose.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
	JSON  bool   `yaml:"json"`
}

// Config holds sandboxd's startup configuration.
type Config struct {
	// DefaultLimits seeds Limits for callers that don't specify their
	// own (e.g. `sandboxd eval` with no flags).
	DefaultLimits sandbox.Limits `yaml:"default_limits"`

	// Interpreter overrides interpreter discovery (internal/launcher's
	// exec.LookPath search) with an explicit path.
	Interpreter string `yaml:"interpreter"`

	// TempDir overrides os.TempDir() for rendered scripts.
	TempDir string `yaml:"temp_dir"`

	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns sandboxd's built-in defaults, matching spec.md
// §6's stated Defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultLimits: sandbox.DefaultLimits(),
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load reads configuration from a YAML file at path, falling back to
// DefaultConfig() when the file does not exist. Environment variables
// are applied on top either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as
// needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory %s: %w", dir, err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides lets deployment environments pin the interpreter
// path or temp directory without editing the YAML file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SANDBOXD_INTERPRETER"); v != "" {
		c.Interpreter = v
	}
	if v := os.Getenv("SANDBOXD_TEMP_DIR"); v != "" {
		c.TempDir = v
	}
	if v := os.Getenv("SANDBOXD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
