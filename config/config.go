// Package config loads signsync settings from a YAML or JSON file and
// SIGNSYNC_* environment variables, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/c0deZ3R0/signsync/adapter"
	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/errors"
	"github.com/c0deZ3R0/signsync/logging"
	"github.com/c0deZ3R0/signsync/storage/sqlite"
	"github.com/c0deZ3R0/signsync/synckit"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SIGNSYNC_"

// DefaultDebounceInterval is the auto-sync quiet period.
const DefaultDebounceInterval = 300 * time.Millisecond

type Config struct {
	Bus     BusConfig      `json:"bus" yaml:"bus" envPrefix:"BUS_"`
	Sync    SyncConfig     `json:"sync" yaml:"sync" envPrefix:"SYNC_"`
	Logging logging.Config `json:"logging" yaml:"logging"`
	Journal JournalConfig  `json:"journal" yaml:"journal" envPrefix:"JOURNAL_"`
}

type BusConfig struct {
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	DispatchMode   string        `json:"dispatch_mode" yaml:"dispatch_mode" env:"DISPATCH_MODE"` // sync, async
}

type SyncConfig struct {
	ConflictResolution string        `json:"conflict_resolution" yaml:"conflict_resolution" env:"CONFLICT_RESOLUTION"`
	DebounceInterval   time.Duration `json:"debounce_interval" yaml:"debounce_interval" env:"DEBOUNCE_INTERVAL"`
	AdapterMode        string        `json:"adapter_mode" yaml:"adapter_mode" env:"ADAPTER_MODE"` // incremental, full_resync
	SelfFilter         bool          `json:"self_filter" yaml:"self_filter" env:"SELF_FILTER"`
	AutoSync           bool          `json:"auto_sync" yaml:"auto_sync" env:"AUTO_SYNC"`
}

type JournalConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	DataSourceName string `json:"data_source_name" yaml:"data_source_name" env:"DSN"`
	EnableWAL      bool   `json:"enable_wal" yaml:"enable_wal" env:"ENABLE_WAL"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Bus: BusConfig{
			RequestTimeout: bus.DefaultRequestTimeout,
			DispatchMode:   string(bus.DispatchSync),
		},
		Sync: SyncConfig{
			ConflictResolution: synckit.ConflictLastWriteWins,
			DebounceInterval:   DefaultDebounceInterval,
			AdapterMode:        string(adapter.ModeIncremental),
		},
		Logging: logging.DefaultConfig,
		Journal: JournalConfig{
			DataSourceName: sqlite.MemoryDSN,
			EnableWAL:      true,
		},
	}
}

// Load reads path when non-empty, overlays the environment and validates
// the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.NewWithComponent(errors.OpConfig, "config", fmt.Errorf("read %s: %w", path, err))
		}
		if err := decode(data, detectFormat(path), &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Logging = logging.ApplyEnvironmentDefaults(cfg.Logging)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromBytes decodes data over the defaults without consulting the
// environment. format is "yaml" or "json".
func LoadFromBytes(data []byte, format string) (Config, error) {
	cfg := Default()
	if err := decode(data, format, &cfg); err != nil {
		return Config{}, err
	}
	cfg.Logging = logging.ApplyEnvironmentDefaults(cfg.Logging)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays SIGNSYNC_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.NewValidationError(errors.OpConfig, fmt.Errorf("parse environment: %w", err))
	}
	return nil
}

func decode(data []byte, format string, cfg *Config) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.NewValidationError(errors.OpConfig, fmt.Errorf("parse YAML config: %w", err))
		}
	case "json":
		// JSON is decoded by the YAML parser so durations like "300ms" read the same.
		if !json.Valid(data) {
			return errors.NewValidationError(errors.OpConfig, fmt.Errorf("parse JSON config: invalid JSON"))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.NewValidationError(errors.OpConfig, fmt.Errorf("parse JSON config: %w", err))
		}
	default:
		return errors.NewValidationError(errors.OpConfig, fmt.Errorf("unsupported config format: %s", format))
	}
	return nil
}

func detectFormat(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "json":
		return "json"
	default:
		return "yaml"
	}
}

// Validate rejects unknown mode and policy names and out-of-range durations.
func (c Config) Validate() error {
	invalid := func(err error) error { return errors.NewValidationError(errors.OpConfig, err) }

	if c.Bus.RequestTimeout <= 0 {
		return invalid(fmt.Errorf("bus.request_timeout must be positive, got %s", c.Bus.RequestTimeout))
	}
	if _, err := bus.ParseDispatchMode(c.Bus.DispatchMode); err != nil {
		return invalid(err)
	}
	if _, err := synckit.ResolverByName(c.Sync.ConflictResolution); err != nil {
		return err
	}
	if c.Sync.DebounceInterval < 0 {
		return invalid(fmt.Errorf("sync.debounce_interval must not be negative, got %s", c.Sync.DebounceInterval))
	}
	if _, err := adapter.ParseMode(c.Sync.AdapterMode); err != nil {
		return invalid(err)
	}
	if err := c.Logging.Validate(); err != nil {
		return invalid(err)
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.DataSourceName) == "" {
		return invalid(fmt.Errorf("journal.data_source_name is required when the journal is enabled"))
	}
	return nil
}

// BusOptions converts the bus section. cfg must be valid.
func (c Config) BusOptions() []bus.Option {
	mode, _ := bus.ParseDispatchMode(c.Bus.DispatchMode)
	return []bus.Option{
		bus.WithRequestTimeout(c.Bus.RequestTimeout),
		bus.WithDispatchMode(mode),
	}
}

// ManagerOptions converts the conflict policy.
func (c Config) ManagerOptions() []synckit.ManagerOption {
	return []synckit.ManagerOption{synckit.WithConflictResolution(c.Sync.ConflictResolution)}
}

// AdapterOptions converts the adapter settings. cfg must be valid.
func (c Config) AdapterOptions() []adapter.Option {
	mode, _ := adapter.ParseMode(c.Sync.AdapterMode)
	opts := []adapter.Option{
		adapter.WithMode(mode),
		adapter.WithSelfFilter(c.Sync.SelfFilter),
	}
	if c.Sync.AutoSync {
		opts = append(opts, adapter.WithAutoSync(c.Sync.DebounceInterval))
	}
	return opts
}

// JournalOptions converts the journal section.
func (c Config) JournalOptions() *sqlite.Config {
	return &sqlite.Config{
		DataSourceName: c.Journal.DataSourceName,
		EnableWAL:      c.Journal.EnableWAL,
	}
}
