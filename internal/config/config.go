package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module exposes the environment-backed configuration to the fx graph.
var Module = fx.Module("config", fx.Provide(Load))

// Webhook delivery authentication modes.
const (
	AuthModeHMAC = "hmac"
	AuthModeJWT  = "jwt"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Webhook WebhookConfig
	Worker  WorkerConfig
	Fatture FattureConfig
}

// WebhookConfig governs delivery authentication and admission control.
type WebhookConfig struct {
	AuthMode string

	// ES256 public key (PEM) plus expected claims, used when AuthMode is jwt.
	JWTPublicKeyPEM string
	JWTIssuer       string
	JWTAudience     string

	// Key used to encrypt subscription secrets at rest.
	SecretEncryptionKey string

	RateLimitEnabled bool
	RateLimitPerSec  int
	RateLimitWindow  time.Duration
}

// WorkerConfig sizes the sync worker pool and its retry policy.
type WorkerConfig struct {
	PoolSize     int
	PollInterval time.Duration
	BatchSize    int
	JobTimeout   time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
}

// FattureConfig points at the external invoicing platform.
type FattureConfig struct {
	BaseURL          string
	AuthURL          string
	OAuthClientID    string
	OAuthClientSec   string
	OAuthRedirectURI string

	BroadcastChannelPrefix string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "invosync"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "invosync"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:       int(getenvInt64("REDIS_DB", 0)),

		Webhook: WebhookConfig{
			AuthMode:            normalizeAuthMode(getenv("WEBHOOK_AUTH_MODE", AuthModeHMAC)),
			JWTPublicKeyPEM:     getenv("WEBHOOK_JWT_PUBLIC_KEY", ""),
			JWTIssuer:           strings.TrimSpace(getenv("WEBHOOK_JWT_ISSUER", "")),
			JWTAudience:         strings.TrimSpace(getenv("WEBHOOK_JWT_AUDIENCE", "")),
			SecretEncryptionKey: strings.TrimSpace(getenv("WEBHOOK_SECRET_ENCRYPTION_KEY", "")),
			RateLimitEnabled:    getenvBool("WEBHOOK_RATE_LIMIT_ENABLED", true),
			RateLimitPerSec:     int(getenvInt64("WEBHOOK_RATE_LIMIT_PER_SEC", 1)),
			RateLimitWindow:     getenvDuration("WEBHOOK_RATE_LIMIT_WINDOW", time.Second),
		},

		Worker: WorkerConfig{
			PoolSize:     int(getenvInt64("WORKER_POOL_SIZE", 4)),
			PollInterval: getenvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
			BatchSize:    int(getenvInt64("WORKER_BATCH_SIZE", 10)),
			JobTimeout:   getenvDuration("WORKER_JOB_TIMEOUT", 120*time.Second),
			MaxAttempts:  int(getenvInt64("WORKER_MAX_ATTEMPTS", 3)),
			BackoffBase:  getenvDuration("WORKER_BACKOFF_BASE", time.Minute),
		},

		Fatture: FattureConfig{
			BaseURL:                getenv("FATTURE_API_URL", "https://api-v2.fattureincloud.it"),
			AuthURL:                getenv("FATTURE_AUTH_URL", "https://api-v2.fattureincloud.it/oauth/authorize"),
			OAuthClientID:          strings.TrimSpace(getenv("FATTURE_CLIENT_ID", "")),
			OAuthClientSec:         strings.TrimSpace(getenv("FATTURE_CLIENT_SECRET", "")),
			OAuthRedirectURI:       strings.TrimSpace(getenv("FATTURE_REDIRECT_URI", "")),
			BroadcastChannelPrefix: getenv("BROADCAST_CHANNEL_PREFIX", "sync"),
		},
	}
}

func normalizeAuthMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case AuthModeJWT:
		return AuthModeJWT
	default:
		return AuthModeHMAC
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
