package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api", cfg.APIBaseURL)
	assert.Equal(t, 5*time.Second, cfg.SessionRestoreTimeout)
	assert.Equal(t, 10, cfg.LoginRateLimit)
	assert.Empty(t, cfg.AuditPGDSN)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "c")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsRelativeAPIBase(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("API_BASE_URL", "/api")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, parseLevel(nil))
	assert.Equal(t, slog.LevelDebug, parseLevel(&Config{LogLevel: "DEBUG"}))
	assert.Equal(t, slog.LevelWarn, parseLevel(&Config{LogLevel: "warning"}))
}

func TestConfigConnectionOptions(t *testing.T) {
	cfg := &Config{RedisAddr: "redis:6379", RedisPassword: "pw", RedisDB: 2, AuditPGMaxConns: 3}

	assert.Equal(t, "redis:6379", cfg.RedisOptions().Addr)
	assert.Equal(t, 2, cfg.AsynqRedis().DB)
	assert.Equal(t, "pw", cfg.AsynqRedis().Password)

	opts := cfg.AuditDBOptions("worker")
	assert.Equal(t, int32(3), opts.MaxConns)
	assert.Equal(t, "bookstore-console-worker", opts.ApplicationName)
}
