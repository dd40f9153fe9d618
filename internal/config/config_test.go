package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "trackd.db", cfg.Store.SQLitePath)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 25.0, cfg.Server.RateLimit)
	assert.Equal(t, 50, cfg.Server.RateBurst)
	assert.Equal(t, int64(64*1024), cfg.Server.MaxBodyBytes)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 1024, cfg.Resolver.QueueSize)
	assert.Equal(t, 4, cfg.Resolver.Workers)
	assert.Equal(t, 3, cfg.Resolver.MaxAttempts)
	assert.Equal(t, "async", cfg.Resolver.Mode)
	assert.Equal(t, 4, cfg.Reconcile.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRACKD_STORE_DRIVER", "sqlite")
	t.Setenv("TRACKD_STORE_SQLITE_PATH", "/tmp/override.db")
	t.Setenv("TRACKD_SERVER_PORT", "9090")
	t.Setenv("TRACKD_RESOLVER_MODE", "sync")
	t.Setenv("TRACKD_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/override.db", cfg.Store.SQLitePath)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sync", cfg.Resolver.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "shouty", Format: "json"})
	require.Error(t, err)
}
