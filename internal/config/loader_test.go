package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetConfigFile(t *testing.T) {
	t.Helper()
	SetConfigFile("")
	t.Cleanup(func() { SetConfigFile("") })
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		resetConfigFile(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify backend defaults
		assert.Equal(t, "http://localhost:8080", cfg.Backend.BaseURL)
		assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
		assert.Zero(t, cfg.Backend.RateLimit)

		// Verify poll defaults
		assert.Equal(t, 5000, cfg.Poll.IntervalMs)
		assert.Zero(t, cfg.Poll.MaxPolls)
		assert.Zero(t, cfg.Poll.MaxDuration)

		// Verify logging defaults
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		resetConfigFile(t)

		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// Non-overridden values remain default
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, 5000, cfg.Poll.IntervalMs)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		resetConfigFile(t)

		t.Setenv("PATTERNSCOPE_SERVER_PORT", "3000")
		t.Setenv("PATTERNSCOPE_LOGGING_LEVEL", "warn")
		t.Setenv("PATTERNSCOPE_BACKEND_BASE_URL", "http://backend:9999")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "http://backend:9999", cfg.Backend.BaseURL)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		resetConfigFile(t)

		t.Setenv("PATTERNSCOPE_SERVER_PORT", "4000")

		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Runtime override wins over env var
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		resetConfigFile(t)

		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
server:
  port: 7070
backend:
  base_url: http://file-backend:8080
  timeout: 45s
poll:
  interval_ms: 2500
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		SetConfigFile(path)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, "http://file-backend:8080", cfg.Backend.BaseURL)
		assert.Equal(t, 45*time.Second, cfg.Backend.Timeout)
		assert.Equal(t, 2500, cfg.Poll.IntervalMs)

		// Untouched values remain default
		assert.Equal(t, "localhost", cfg.Server.Host)
	})

	t.Run("MissingConfigFile", func(t *testing.T) {
		resetConfigFile(t)
		SetConfigFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

		_, err := Load(ctx)
		assert.Error(t, err)
	})
}

func TestDurationParsing(t *testing.T) {
	ctx := context.Background()
	resetConfigFile(t)

	t.Setenv("PATTERNSCOPE_SERVER_READ_TIMEOUT", "45s")
	t.Setenv("PATTERNSCOPE_SERVER_SHUTDOWN_TIMEOUT", "5m")
	t.Setenv("PATTERNSCOPE_POLL_MAX_DURATION", "10m")

	cfg, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Poll.MaxDuration)
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()
	resetConfigFile(t)

	cfg, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
}

func TestConfigReload(t *testing.T) {
	ctx := context.Background()
	resetConfigFile(t)

	cfg1, err := Load(ctx)
	require.NoError(t, err)
	initialPort := cfg1.Server.Port

	overrides := map[string]any{
		"server": map[string]any{
			"port": initialPort + 1000,
		},
	}

	cfg2, err := Load(ctx, overrides)
	require.NoError(t, err)
	assert.Equal(t, initialPort+1000, cfg2.Server.Port)

	current := GetConfig()
	assert.Equal(t, cfg2.Server.Port, current.Server.Port)
}
