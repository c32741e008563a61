package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 1500*time.Millisecond, cfg.MismatchDelay)
	assert.Equal(t, 30*time.Second, cfg.DisconnectGrace)
	assert.Equal(t, 8, cfg.DeckPairs)
	assert.Equal(t, time.Hour, cfg.ThemeCacheTTL)
	assert.Equal(t, []string{"*"}, cfg.Origins())

	exp, err := cfg.TokenExpiry()
	require.NoError(t, err)
	assert.Zero(t, exp)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("MISMATCH_DELAY", "250ms")
	t.Setenv("DISCONNECT_GRACE", "0")
	t.Setenv("DECK_PAIRS", "40")
	t.Setenv("TOKEN_EXPIRE_TIME", "72h")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.MismatchDelay)
	assert.Zero(t, cfg.DisconnectGrace)
	assert.Equal(t, 12, cfg.DeckPairs)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())

	exp, err := cfg.TokenExpiry()
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, exp)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7070\nlog_level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidation(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "etcd")
		_, err := Load("")
		assert.Error(t, err)
	})
	t.Run("postgres needs url", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "postgres")
		t.Setenv("DATABASE_URL", "")
		_, err := Load("")
		assert.ErrorContains(t, err, "DATABASE_URL")
	})
	t.Run("bad expiry", func(t *testing.T) {
		t.Setenv("TOKEN_EXPIRE_TIME", "soon")
		_, err := Load("")
		assert.ErrorContains(t, err, "TOKEN_EXPIRE_TIME")
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
