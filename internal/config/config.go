// Package config handles configuration loading and validation for
// typewitness.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" yaml:"version"`

	// Storage configuration for persistence.
	Storage StorageConfig `toml:"storage" yaml:"storage"`

	// Ingest configuration for the spool watcher.
	Ingest IngestConfig `toml:"ingest" yaml:"ingest"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the SQLite database file.
	Path string `toml:"path" yaml:"path"`
}

// IngestConfig holds spool-watcher configuration.
type IngestConfig struct {
	// SpoolDir is the directory watched for dropped event-batch files.
	SpoolDir string `toml:"spool_dir" yaml:"spool_dir"`

	// RescanIntervalSec is the periodic directory rescan interval, a
	// safety net for missed filesystem notifications.
	RescanIntervalSec int `toml:"rescan_interval_sec" yaml:"rescan_interval_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`

	// Format is the output format: text or json.
	Format string `toml:"format" yaml:"format"`

	// Output is where logs go: stdout, stderr, or file.
	Output string `toml:"output" yaml:"output"`

	// FilePath is the log file path when Output is file.
	FilePath string `toml:"file_path" yaml:"file_path"`
}

// DataDir returns the typewitness data directory, honoring
// TYPEWITNESS_DIR.
func DataDir() string {
	if dir := os.Getenv("TYPEWITNESS_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".typewitness"
	}
	return filepath.Join(home, ".typewitness")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Version: Version,
		Storage: StorageConfig{
			Path: filepath.Join(dir, "typewitness.db"),
		},
		Ingest: IngestConfig{
			SpoolDir:          filepath.Join(dir, "spool"),
			RescanIntervalSec: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads the configuration from path, falling back to defaults when the
// file does not exist. TOML is the primary encoding; .yaml/.yml files are
// accepted as an alternative. Environment overrides are applied after
// parsing and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults apply.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies TYPEWITNESS_* environment variables on top of
// the parsed configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TYPEWITNESS_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("TYPEWITNESS_SPOOL_DIR"); v != "" {
		c.Ingest.SpoolDir = v
	}
	if v := os.Getenv("TYPEWITNESS_RESCAN_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ingest.RescanIntervalSec = n
		}
	}
	if v := os.Getenv("TYPEWITNESS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TYPEWITNESS_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TYPEWITNESS_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Version <= 0 || c.Version > Version {
		return fmt.Errorf("unsupported config version %d (current: %d)", c.Version, Version)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if c.Ingest.SpoolDir == "" {
		return fmt.Errorf("ingest.spool_dir must not be empty")
	}
	if c.Ingest.RescanIntervalSec <= 0 {
		return fmt.Errorf("ingest.rescan_interval_sec must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Output) {
	case "", "stdout", "stderr":
	case "file":
		if c.Logging.FilePath == "" {
			return fmt.Errorf("logging.file_path required when logging.output is file")
		}
	default:
		return fmt.Errorf("logging.output %q is not one of stdout, stderr, file", c.Logging.Output)
	}

	return nil
}
