package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath names an optional YAML config file.
	EnvConfigPath = "FINANCE_CONFIG"
	EnvDBPath     = "FINANCE_DB_PATH"
	EnvLogLevel   = "FINANCE_LOG_LEVEL"
	EnvLogFormat  = "FINANCE_LOG_FORMAT"
)

type Config struct {
	DatabasePath string `yaml:"database_path"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
}

// Load builds the configuration from defaults, then the YAML file named by
// FINANCE_CONFIG if set, then individual environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.LogFormat = v
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() error {
	if c.DatabasePath == "" {
		path, err := DefaultDatabasePath()
		if err != nil {
			return err
		}
		c.DatabasePath = path
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("Log format %q is not supported, use console or json", c.LogFormat)
	}
	return nil
}

// DefaultDatabasePath is ~/.finance-cli/finance.db.
func DefaultDatabasePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("Home directory is not set: %w", err)
	}
	return filepath.Join(home, ".finance-cli", "finance.db"), nil
}
