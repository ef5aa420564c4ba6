package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/signsync/errors"
)

func TestLogger(t *testing.T) {
	configs := []Config{
		{Level: "debug", Format: "text", Environment: EnvDevelopment, AddSource: true},
		{Level: "info", Format: "json", Environment: EnvProduction, AddSource: false},
	}

	for _, config := range configs {
		t.Run("Environment_"+config.Environment, func(t *testing.T) {
			var buf bytes.Buffer
			config.Output = &buf
			logger := NewLogger(config)

			logger.Info("Info message", slog.Int("count", 42))
			logger.LogError(context.Background(), errors.NewNotFoundError(errors.OpUpdateSignType, fmt.Errorf("Sign type X not found")), "Operation failed")
			logger.WithComponent(Component("bus")).Info("Child logger message")

			err := logger.LogOperation(context.Background(), Operation("op"), Component("test"), func() error { return nil })
			require.NoError(t, err)

			out := buf.String()
			assert.Contains(t, out, "Info message")
			assert.Contains(t, out, "NOT_FOUND")
			assert.Contains(t, out, "Child logger message")
		})
	}
}

func TestLogOperationFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "debug", Format: "json", Output: &buf})

	want := fmt.Errorf("boom")
	got := logger.LogOperation(context.Background(), Operation("create"), Component("synckit"), func() error { return want })
	assert.Equal(t, want, got)
	assert.Contains(t, buf.String(), "operation failed")
}

func TestSyncErrorValuer(t *testing.T) {
	syncErr := errors.NewTimeoutError(errors.OpRequest, fmt.Errorf("no reply")).
		WithMetadata("target", "app_b")

	valuer := SyncErrorValuer{SyncError: syncErr}
	logValue := valuer.LogValue()
	assert.Equal(t, slog.KindGroup, logValue.Kind())

	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "json", Output: &buf})
	logger.Error("request failed", slog.Any("sync_error", valuer))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	group, ok := record["sync_error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TIMEOUT", group["code"])
	assert.Equal(t, "no reply", group["error"])
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.False(t, cfg.AddSource)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{Level: "loud", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "info", Format: "xml"}.Validate())
	assert.NoError(t, ApplyEnvironmentDefaults(Config{Environment: EnvTest}).Validate())
	assert.Equal(t, "level=info format=json env=production source=false",
		Config{Level: "info", Format: "json", Environment: EnvProduction}.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("unknown"))
}
