package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("AUTHZ_ADMIN_TOKEN_HASH", "$2a$10$test")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 5*time.Minute, cfg.SnapshotInterval)
	assert.Equal(t, 90, cfg.AuditRetainDays)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("AUTHZ_ADMIN_TOKEN_HASH", "$2a$10$test")
	t.Setenv("AUTHZ_APP_ENV", "production")
	t.Setenv("AUTHZ_APP_ADDR", ":9090")
	t.Setenv("AUTHZ_SNAPSHOT_INTERVAL", "30s")
	t.Setenv("AUTHZ_RATE_LIMIT_PER_MINUTE", "50")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9090", cfg.AppAddr)
	assert.Equal(t, 30*time.Second, cfg.SnapshotInterval)
	assert.Equal(t, 50, cfg.RateLimitPerMinute)
}

func TestLoadConfigRequiresAdminTokenHash(t *testing.T) {
	t.Setenv("AUTHZ_ADMIN_TOKEN_HASH", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}
