package logging

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Environment types
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// ConfigFromEnv creates a logger configuration from LOG_LEVEL, LOG_FORMAT,
// LOG_ADD_SOURCE and ENVIRONMENT, layered over DefaultConfig.
func ConfigFromEnv() (Config, error) {
	config := DefaultConfig
	if err := env.Parse(&config); err != nil {
		return DefaultConfig, fmt.Errorf("parse logging env: %w", err)
	}
	return ApplyEnvironmentDefaults(config), nil
}

// ApplyEnvironmentDefaults fills blank fields according to the environment.
func ApplyEnvironmentDefaults(config Config) Config {
	config.Level = strings.ToLower(config.Level)
	config.Format = strings.ToLower(config.Format)
	config.Environment = strings.ToLower(config.Environment)

	switch config.Environment {
	case EnvProduction:
		if config.Format == "" {
			config.Format = "json"
		}
		if config.Level == "" {
			config.Level = "info"
		}
		config.AddSource = false

	case EnvTest:
		if config.Format == "" {
			config.Format = "text"
		}
		if config.Level == "" {
			config.Level = "debug"
		}
		config.AddSource = false

	case EnvDevelopment:
		if config.Format == "" {
			config.Format = "text"
		}
		if config.Level == "" {
			config.Level = "debug"
		}
	}

	if config.Level == "" {
		config.Level = "info"
	}
	if config.Format == "" {
		config.Format = "json"
	}
	return config
}

// Validate rejects unknown level and format names.
func (c Config) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	return nil
}
