package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "VIEW_KIND", "SUBDOMAIN", "PLATFORM_URL", "REFRESH_INTERVAL", "PAGE_SIZE", "GRPC_PORT", "DEBUG"} {
		t.Setenv(k, "")
	}

	cfg := LoadFromEnv()

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "background", cfg.ViewKind)
	assert.Equal(t, 45*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 25, cfg.NavPageSize)
	assert.Equal(t, 50051, cfg.GRPCPort)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.False(t, cfg.Debug)
	assert.Empty(t, cfg.PlatformURL)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("SUBDOMAIN", "acme")
	t.Setenv("PLATFORM_URL", "")
	t.Setenv("VIEW_KIND", "navbar")
	t.Setenv("REFRESH_INTERVAL", "5m")
	t.Setenv("PAGE_SIZE", "50")
	t.Setenv("DEBUG", "true")

	cfg := LoadFromEnv()

	assert.Equal(t, "https://acme.zendesk.com", cfg.PlatformURL)
	assert.Equal(t, "navbar", cfg.ViewKind)
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 50, cfg.PageSize)
	assert.True(t, cfg.Debug)
}

func TestLoadFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("GRPC_PORT", "not-a-port")
	t.Setenv("REFRESH_INTERVAL", "-1m")
	t.Setenv("DEBUG", "maybe")

	cfg := LoadFromEnv()

	assert.Equal(t, 50051, cfg.GRPCPort)
	assert.Equal(t, 45*time.Minute, cfg.RefreshInterval)
	assert.False(t, cfg.Debug)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&Config{AppEnv: "production", Debug: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger(&Config{AppEnv: "development"})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
