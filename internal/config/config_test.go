package config

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tapcard/internal/cache"
	"github.com/sakif/tapcard/internal/events"
)

// clearEnv blanks every key Load reads so the host environment can't leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "PORT", "DB_PATH", "JWT_SECRET", "PUBLIC_BASE_URL",
		"LOG_LEVEL", "LOG_FORMAT", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"VISIT_DEDUPE_WINDOW", "RABBITMQ_URL", "EVENTS_QUEUE",
		"S3_BUCKET", "S3_REGION", "S3_PUBLIC_BASE_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.Production())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "data/tapcard.db", cfg.DBPath)
	assert.Equal(t, "http://localhost:8080", cfg.PublicBaseURL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, cache.DefaultVisitWindow, cfg.VisitWindow)
	assert.Equal(t, events.DefaultQueue, cfg.EventsQueue)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("PUBLIC_BASE_URL", "https://tap.example.com/")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("VISIT_DEDUPE_WINDOW", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "https://tap.example.com", cfg.PublicBaseURL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 5*time.Minute, cfg.VisitWindow)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "eighty"},
		{"REDIS_DB", "x"},
		{"VISIT_DEDUPE_WINDOW", "forever"},
		{"LOG_LEVEL", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestLoad_ProductionNeedsSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Production())
}

func TestConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	Config{LogFormat: "json", LogLevel: slog.LevelWarn}.Logger(&buf).Info("hidden")
	assert.Empty(t, buf.String())

	Config{LogFormat: "json"}.Logger(&buf).Info("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
