// Package config loads all runtime configuration from environment variables.
// No config files and no third-party config framework are used; the CLI may
// populate the environment from a .env file before Load is called.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the client portal.
type Config struct {
	HTTP    HTTPConfig
	DB      DBConfig
	Log     LogConfig
	JWT     JWTConfig
	Storage StorageConfig
	Stripe  StripeConfig
	AI      AIConfig
	Contact ContactConfig
	Redis   RedisConfig
	App     AppConfig
	Worker  WorkerConfig
	OTel    OTelConfig
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port       int
	SiteOrigin string // public origin used in redirect and signed URLs
	// TrustProxy honours X-Forwarded-For for the client address. Enable only
	// behind a proxy that overwrites the header.
	TrustProxy bool
}

// DBConfig holds database connection configuration.
type DBConfig struct {
	Driver   string // "sqlite" (default) or "postgres"
	DSN      string // required when Driver == "postgres"
	File     string // SQLite database file path (default: "clientportal.db")
	MaxConns int    // Postgres only
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string
	Format string
}

// JWTConfig holds JSON Web Token signing and expiry settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // intentional: holds JWT signing secret loaded from env
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// StorageConfig selects and configures the document object store.
type StorageConfig struct {
	Driver         string // "disk" (default) or "s3"
	Dir            string // disk driver root directory
	Bucket         string // s3 driver bucket
	Region         string
	Endpoint       string // optional S3-compatible endpoint (MinIO, LocalStack)
	SignedURLTTL   time.Duration
	UploadMaxBytes int64
}

// StripeConfig holds payment processor credentials and per-case-type prices.
type StripeConfig struct {
	SecretKey     string //nolint:gosec // intentional: payment processor key loaded from env
	WebhookSecret string //nolint:gosec // intentional: webhook signing secret loaded from env
	// DepositPrices maps a case type code (t1, ta, t2) to a processor price id.
	DepositPrices map[string]string
}

// AIConfig holds AI provider connection settings for the FAQ responder.
type AIConfig struct {
	Provider string
	APIKey   string //nolint:gosec // intentional: holds AI provider API key loaded from env
	APIBase  string
	Model    string
}

// ContactConfig holds CAPTCHA and transactional email settings.
type ContactConfig struct {
	CaptchaSecret    string //nolint:gosec // intentional: CAPTCHA secret loaded from env
	CaptchaVerifyURL string
	EmailAPIKey      string //nolint:gosec // intentional: email provider key loaded from env
	EmailAPIURL      string
	EmailFrom        string
	EmailTo          string
}

// RedisConfig holds the optional rate limiter backend.
type RedisConfig struct {
	URL            string
	LimitPerMinute int
}

// AppConfig holds application-level settings such as seed credentials.
type AppConfig struct {
	SeedAdminEmail    string
	SeedAdminPassword string
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency   int
	SweepInterval time.Duration
	SweepAge      time.Duration
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applies defaults,
// and returns an error if any required field is absent.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// HTTP
	cfg.HTTP.Port = envInt("HTTP_PORT", 8080)
	cfg.HTTP.SiteOrigin = strings.TrimRight(envStr("SITE_ORIGIN", "http://localhost:8080"), "/")
	cfg.HTTP.TrustProxy = envBool("TRUST_PROXY", false)

	// DB
	cfg.DB.Driver = envStr("DB_DRIVER", "sqlite")
	cfg.DB.File = envStr("DB_FILE", "clientportal.db")
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.Driver == "postgres" && cfg.DB.DSN == "" {
		return nil, errors.New("DB_DSN is required when DB_DRIVER=postgres")
	}
	cfg.DB.MaxConns = envInt("DB_MAX_CONNS", 25)

	// Log
	cfg.Log.Level = envStr("LOG_LEVEL", "info")
	cfg.Log.Format = envStr("LOG_FORMAT", "json")

	// JWT (required)
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	cfg.JWT.AccessTTL, err = envDuration("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("JWT_ACCESS_TTL: %w", err)
	}
	cfg.JWT.RefreshTTL, err = envDuration("JWT_REFRESH_TTL", 720*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JWT_REFRESH_TTL: %w", err)
	}

	// Storage
	cfg.Storage.Driver = envStr("STORAGE_DRIVER", "disk")
	cfg.Storage.Dir = envStr("STORAGE_DIR", "data/objects")
	cfg.Storage.Bucket = os.Getenv("STORAGE_BUCKET")
	cfg.Storage.Region = envStr("AWS_REGION", "us-east-1")
	cfg.Storage.Endpoint = os.Getenv("AWS_ENDPOINT_URL")
	if cfg.Storage.Driver == "s3" && cfg.Storage.Bucket == "" {
		return nil, errors.New("STORAGE_BUCKET is required when STORAGE_DRIVER=s3")
	}
	cfg.Storage.SignedURLTTL, err = envDuration("SIGNED_URL_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SIGNED_URL_TTL: %w", err)
	}
	cfg.Storage.UploadMaxBytes = int64(envInt("UPLOAD_MAX_BYTES", 50<<20))

	// Stripe. Missing values are not fatal at boot: the checkout and webhook
	// endpoints report them as server misconfiguration.
	cfg.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.Stripe.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.Stripe.DepositPrices = map[string]string{}
	for _, t := range []string{"t1", "ta", "t2"} {
		if v := os.Getenv("STRIPE_PRICE_" + strings.ToUpper(t) + "_DEPOSIT"); v != "" {
			cfg.Stripe.DepositPrices[t] = v
		}
	}

	// AI
	cfg.AI.Provider = envStr("AI_PROVIDER", "noop")
	cfg.AI.APIKey = os.Getenv("AI_API_KEY")
	cfg.AI.APIBase = envStr("AI_API_BASE", "https://api.openai.com/v1")
	cfg.AI.Model = envStr("AI_MODEL", "gpt-4o-mini")

	// Contact
	cfg.Contact.CaptchaSecret = os.Getenv("CAPTCHA_SECRET")
	cfg.Contact.CaptchaVerifyURL = envStr("CAPTCHA_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify")
	cfg.Contact.EmailAPIKey = os.Getenv("EMAIL_API_KEY")
	cfg.Contact.EmailAPIURL = envStr("EMAIL_API_URL", "https://api.resend.com/emails")
	cfg.Contact.EmailFrom = os.Getenv("EMAIL_FROM")
	cfg.Contact.EmailTo = os.Getenv("EMAIL_TO")

	// Redis
	cfg.Redis.URL = os.Getenv("REDIS_URL")
	cfg.Redis.LimitPerMinute = envInt("RATE_LIMIT_PER_MINUTE", 10)

	// App
	cfg.App.SeedAdminEmail = envStr("SEED_ADMIN_EMAIL", "admin@clientportal.local")
	cfg.App.SeedAdminPassword = os.Getenv("SEED_ADMIN_PASSWORD")

	// Worker
	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", 10)
	cfg.Worker.SweepInterval, err = envDuration("SWEEP_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SWEEP_INTERVAL: %w", err)
	}
	cfg.Worker.SweepAge, err = envDuration("SWEEP_PENDING_AGE", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SWEEP_PENDING_AGE: %w", err)
	}

	// OTel
	cfg.OTel.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}
