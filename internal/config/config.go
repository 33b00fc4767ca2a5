package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Stripe StripeConfig
	Redis  RedisConfig
	Email  EmailConfig
	Slack  SlackConfig
	Admin  AdminConfig

	CatalogPath string
}

type StripeConfig struct {
	SecretKey string
	// WebhookSecrets are tried in order. During rotation both secrets are listed.
	WebhookSecrets     []string `validate:"required,min=1,dive,required"`
	SignatureTolerance time.Duration
}

type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	AnalyticsStream string
	HoldTTL         time.Duration
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func (c EmailConfig) Enabled() bool {
	return strings.TrimSpace(c.SMTPHost) != ""
}

type SlackConfig struct {
	WebhookURL string
	Channel    string
}

// AdminConfig holds bearer tokens for the operator endpoints. The viewer
// token can list failures but not replay them.
type AdminConfig struct {
	APIToken    string
	ViewerToken string

	// RateLimit is tokens per second per subject; zero disables throttling.
	RateLimit     float64
	RateBurst     int
	ReplayLockTTL time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "storefront"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "storefront"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),

		Stripe: StripeConfig{
			SecretKey:          strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecrets:     getenvList("STRIPE_WEBHOOK_SECRETS"),
			SignatureTolerance: getenvDuration("STRIPE_SIGNATURE_TOLERANCE", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:            strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:        getenv("REDIS_PASSWORD", ""),
			DB:              getenvInt("REDIS_DB", 0),
			AnalyticsStream: getenv("ANALYTICS_STREAM", "storefront:analytics"),
			HoldTTL:         getenvDuration("INVENTORY_HOLD_TTL", 30*time.Minute),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "orders@localhost"),
		},
		Slack: SlackConfig{
			WebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			Channel:    getenv("SLACK_ALERT_CHANNEL", "#storefront-ops"),
		},
		Admin: AdminConfig{
			APIToken:    strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
			ViewerToken: strings.TrimSpace(getenv("ADMIN_VIEWER_TOKEN", "")),

			RateLimit:     getenvFloat("ADMIN_RATE_LIMIT", 1),
			RateBurst:     getenvInt("ADMIN_RATE_BURST", 10),
			ReplayLockTTL: getenvDuration("ADMIN_REPLAY_LOCK_TTL", 2*time.Minute),
		},
		CatalogPath: getenv("CATALOG_PATH", ""),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
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

func getenvList(key string) []string {
	parts := strings.Split(os.Getenv(key), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
