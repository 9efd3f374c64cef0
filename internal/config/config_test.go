package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/d9705996/clientportal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingDBDSN(t *testing.T) {
	// DB_DSN is only required when DB_DRIVER=postgres.
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_SECRET", "test-secret")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestLoad_SQLiteNoDBDSN(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_SECRET", "test-secret")
	_, err := config.Load()
	require.NoError(t, err)
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_DRIVER", "s3")
	t.Setenv("STORAGE_BUCKET", "")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_BUCKET")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	// Clear optional vars to ensure defaults apply
	for _, k := range []string{
		"HTTP_PORT", "SITE_ORIGIN", "LOG_LEVEL", "LOG_FORMAT", "AI_PROVIDER",
		"WORKER_CONCURRENCY", "DB_DRIVER", "DB_FILE", "STORAGE_DRIVER",
		"SIGNED_URL_TTL", "UPLOAD_MAX_BYTES", "STRIPE_PRICE_T1_DEPOSIT",
		"STRIPE_PRICE_TA_DEPOSIT", "STRIPE_PRICE_T2_DEPOSIT", "RATE_LIMIT_PER_MINUTE",
		"TRUST_PROXY",
	} {
		os.Unsetenv(k)
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "http://localhost:8080", cfg.HTTP.SiteOrigin)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "noop", cfg.AI.Provider)
	assert.Equal(t, 10, cfg.Worker.Concurrency)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 720*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, "admin@clientportal.local", cfg.App.SeedAdminEmail)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "clientportal.db", cfg.DB.File)
	assert.Equal(t, "disk", cfg.Storage.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Storage.SignedURLTTL)
	assert.Equal(t, int64(50<<20), cfg.Storage.UploadMaxBytes)
	assert.Empty(t, cfg.Stripe.DepositPrices)
	assert.Equal(t, 10, cfg.Redis.LimitPerMinute)
	assert.False(t, cfg.HTTP.TrustProxy)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SITE_ORIGIN", "https://portal.example.com/")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("WORKER_CONCURRENCY", "20")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_FILE", "test.db")
	t.Setenv("STRIPE_PRICE_T1_DEPOSIT", "price_t1")
	t.Setenv("STRIPE_PRICE_T2_DEPOSIT", "price_t2")
	t.Setenv("SWEEP_PENDING_AGE", "30m")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "https://portal.example.com", cfg.HTTP.SiteOrigin)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, 20, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, "test.db", cfg.DB.File)
	assert.Equal(t, map[string]string{"t1": "price_t1", "t2": "price_t2"}, cfg.Stripe.DepositPrices)
	assert.Equal(t, 30*time.Minute, cfg.Worker.SweepAge)
	assert.True(t, cfg.HTTP.TrustProxy)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_ACCESS_TTL", "not-a-duration")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ACCESS_TTL")
}
