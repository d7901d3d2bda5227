package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// Mode selects which Stripe credentials are used.
	Mode string

	// BaseURL is the public URL of the billing system, used to build
	// checkout return/cancel targets and post-payment redirects.
	BaseURL string

	GatewayName string

	StripeTestSecretKey string
	StripeLiveSecretKey string
	StripeWebhookSecret string

	LogLevel string

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

const (
	ModeTest = "test"
	ModeLive = "live"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "paygate"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		Mode:        normalizeMode(getenv("APP_MODE", ModeTest)),
		BaseURL:     strings.TrimRight(strings.TrimSpace(getenv("BASE_URL", "http://localhost:8080")), "/"),
		GatewayName: getenv("GATEWAY_NAME", "stripelite"),

		StripeTestSecretKey: strings.TrimSpace(getenv("STRIPE_TEST_SECRET_KEY", "")),
		StripeLiveSecretKey: strings.TrimSpace(getenv("STRIPE_LIVE_SECRET_KEY", "")),
		StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),

		LogLevel: getenv("LOG_LEVEL", "info"),

		DBType:     getenv("DATABASE_TYPE", "postgres"),
		DBHost:     getenv("DATABASE_HOST", "localhost"),
		DBPort:     getenv("DATABASE_PORT", "5432"),
		DBName:     getenv("DATABASE_NAME", "postgres"),
		DBUser:     getenv("DATABASE_USER", "postgres"),
		DBPassword: getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:  getenv("DATABASE_SSLMODE", "disable"),
	}
}

// SecretKey returns the Stripe API key for the configured mode.
func (c Config) SecretKey() string {
	if c.Mode == ModeLive {
		return c.StripeLiveSecretKey
	}
	return c.StripeTestSecretKey
}

func (c Config) IsLive() bool {
	return c.Mode == ModeLive
}

func normalizeMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ModeLive, "production":
		return ModeLive
	default:
		return ModeTest
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Module wires application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
)
