package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/signsync/adapter"
	"github.com/c0deZ3R0/signsync/bus"
	"github.com/c0deZ3R0/signsync/errors"
)

const sampleYAML = `
bus:
  request_timeout: 2s
  dispatch_mode: async
sync:
  conflict_resolution: last_write_wins
  debounce_interval: 150ms
  adapter_mode: full_resync
  self_filter: true
  auto_sync: true
logging:
  level: warn
  format: text
journal:
  enabled: true
  data_source_name: "file:signsync.db"
`

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, bus.DefaultRequestTimeout, cfg.Bus.RequestTimeout)
	assert.Equal(t, DefaultDebounceInterval, cfg.Sync.DebounceInterval)
	assert.False(t, cfg.Journal.Enabled)
}

func TestLoadFromBytesYAML(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(sampleYAML), "yaml")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Bus.RequestTimeout)
	assert.Equal(t, "async", cfg.Bus.DispatchMode)
	assert.Equal(t, 150*time.Millisecond, cfg.Sync.DebounceInterval)
	assert.Equal(t, "full_resync", cfg.Sync.AdapterMode)
	assert.True(t, cfg.Sync.SelfFilter)
	assert.True(t, cfg.Sync.AutoSync)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "file:signsync.db", cfg.Journal.DataSourceName)
	assert.True(t, cfg.Journal.EnableWAL, "unset keys keep their defaults")

	assert.Len(t, cfg.BusOptions(), 2)
	assert.Len(t, cfg.ManagerOptions(), 1)
	assert.Len(t, cfg.AdapterOptions(), 3)
	assert.Equal(t, "file:signsync.db", cfg.JournalOptions().DataSourceName)
}

func TestLoadFromBytesJSON(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`{"bus": {"request_timeout": "750ms"}, "sync": {"adapter_mode": "incremental"}}`), "json")
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Bus.RequestTimeout)

	_, err = LoadFromBytes([]byte(`bus: {`), "json")
	assert.True(t, errors.IsValidation(err))

	_, err = LoadFromBytes([]byte(`{}`), "toml")
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero timeout", func(c *Config) { c.Bus.RequestTimeout = 0 }},
		{"dispatch mode", func(c *Config) { c.Bus.DispatchMode = "parallel" }},
		{"conflict policy", func(c *Config) { c.Sync.ConflictResolution = "merge" }},
		{"negative debounce", func(c *Config) { c.Sync.DebounceInterval = -time.Second }},
		{"adapter mode", func(c *Config) { c.Sync.AdapterMode = "eventual" }},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"journal without dsn", func(c *Config) {
			c.Journal.Enabled = true
			c.Journal.DataSourceName = " "
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "got %v", err)
		})
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	t.Setenv("SIGNSYNC_BUS_DISPATCH_MODE", "sync")
	t.Setenv("SIGNSYNC_SYNC_DEBOUNCE_INTERVAL", "1s")
	t.Setenv("SIGNSYNC_JOURNAL_DSN", ":memory:")
	t.Setenv("SIGNSYNC_LOG_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sync", cfg.Bus.DispatchMode)
	assert.Equal(t, 2*time.Second, cfg.Bus.RequestTimeout, "file value survives")
	assert.Equal(t, time.Second, cfg.Sync.DebounceInterval)
	assert.Equal(t, ":memory:", cfg.Journal.DataSourceName)
	assert.Equal(t, "error", cfg.Logging.Level)

	mode, err := adapter.ParseMode(cfg.Sync.AdapterMode)
	require.NoError(t, err)
	assert.Equal(t, adapter.ModeFullResync, mode)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("SIGNSYNC_SYNC_ADAPTER_MODE", "bogus")
	_, err := Load("")
	assert.True(t, errors.IsValidation(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
