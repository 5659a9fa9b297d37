package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET_KEY", "test-secret")
	t.Setenv("CSRF_SECRET_KEY", "csrf-secret")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0:8443", cfg.Server.Address())
	assert.Equal(t, "HS256", cfg.Auth.Algorithm)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.Equal(t, time.Hour, cfg.CSRF.MaxLifetime)
	assert.Equal(t, 60, cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "session_token", cfg.Session.CookieName)
	assert.Equal(t, "refresh_token", cfg.Session.RefreshCookieName)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestNewOverrides(t *testing.T) {
	t.Setenv("AUTH_SECRET_KEY", "test-secret")
	t.Setenv("CSRF_SECRET_KEY", "csrf-secret")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL", "15m")
	t.Setenv("RATE_LIMIT_REQUESTS", "100")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 100, cfg.RateLimit.Limit)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestValidate(t *testing.T) {
	t.Run("HS256 requires a secret", func(t *testing.T) {
		t.Setenv("AUTH_SECRET_KEY", "")
		t.Setenv("CSRF_SECRET_KEY", "csrf-secret")

		_, err := New()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AUTH_SECRET_KEY")
	})

	t.Run("RS256 requires key files", func(t *testing.T) {
		t.Setenv("AUTH_JWT_ALGORITHM", "RS256")
		t.Setenv("CSRF_SECRET_KEY", "csrf-secret")

		_, err := New()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AUTH_PRIVATE_KEY_FILE")
	})

	t.Run("dev bypass forbidden in production", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("AUTH_SECRET_KEY", "test-secret")
		t.Setenv("CSRF_SECRET_KEY", "csrf-secret")
		t.Setenv("AUTH_DEV_BYPASS_ENABLED", "true")

		_, err := New()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bypass")
	})

	t.Run("invalid log level rejected", func(t *testing.T) {
		t.Setenv("AUTH_SECRET_KEY", "test-secret")
		t.Setenv("CSRF_SECRET_KEY", "csrf-secret")
		t.Setenv("LOG_LEVEL", "verbose")

		_, err := New()
		assert.Error(t, err)
	})

	t.Run("unparseable durations fall back to defaults", func(t *testing.T) {
		t.Setenv("AUTH_SECRET_KEY", "test-secret")
		t.Setenv("CSRF_SECRET_KEY", "csrf-secret")
		t.Setenv("AUTH_ACCESS_TOKEN_TTL", "not-a-duration")

		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)
	})
}
