package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port            string
	PlanCatalogPath string
	Logs            LogConfig
	DB              PostgresConfig
	Stripe          StripeConfig
	Mpesa           MpesaConfig
	Redis           RedisConfig
	Scheduler       SchedulerConfig
	Auth            AuthConfig
	QueueURL        string
}

type LogConfig struct {
	Style string // "console" or "json"
	Level string
}

type PostgresConfig struct {
	Driver   string // "postgres" or "memory"
	Username string
	Password string
	URL      string
	Port     string
	Name     string
	SSLMode  string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	CallbackURL    string
	Timeout        time.Duration
}

type RedisConfig struct {
	URL       string
	LockTTL   time.Duration
	KeyPrefix string
}

type SchedulerConfig struct {
	Spec          string // cron spec, e.g. "@every 15m"
	RenewalPolicy string // "renew" or "expire"
	Concurrency   int
	Disabled      bool
}

type AuthConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
}

// DSN builds the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.Username,
		p.Password,
		p.URL,
		p.Port,
		p.Name,
		sslMode,
	)
}

func LoadConfig() (*Config, error) {
	mpesaTimeout, err := envDuration("MPESA_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	lockTTL, err := envDuration("REDIS_LOCK_TTL", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	concurrency, err := envInt("RENEWAL_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	schedulerDisabled, err := envBool("RENEWAL_DISABLED", false)
	if err != nil {
		return nil, err
	}

	policy := strings.ToLower(envOr("RENEWAL_POLICY", "renew"))
	if policy != "renew" && policy != "expire" {
		return nil, fmt.Errorf("RENEWAL_POLICY must be renew or expire, got %q", policy)
	}

	cfg := &Config{
		Port:            envOr("PORT", "8080"),
		PlanCatalogPath: os.Getenv("PLAN_CATALOG_PATH"),
		QueueURL:        os.Getenv("QUEUE_URL"),
		Logs: LogConfig{
			Style: envOr("LOG_STYLE", "json"),
			Level: envOr("LOG_LEVEL", "info"),
		},
		DB: PostgresConfig{
			Driver:   envOr("DB_DRIVER", "postgres"),
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     envOr("POSTGRES_PORT", "5432"),
			Name:     envOr("POSTGRES_DB", "medrin"),
			SSLMode:  os.Getenv("POSTGRES_SSLMODE"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:      envOr("STRIPE_CURRENCY", "usd"),
		},
		Mpesa: MpesaConfig{
			BaseURL:        envOr("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
			ShortCode:      os.Getenv("MPESA_SHORTCODE"),
			PassKey:        os.Getenv("MPESA_PASSKEY"),
			CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
			Timeout:        mpesaTimeout,
		},
		Redis: RedisConfig{
			URL:       os.Getenv("REDIS_URL"),
			LockTTL:   lockTTL,
			KeyPrefix: envOr("REDIS_KEY_PREFIX", "medrin"),
		},
		Scheduler: SchedulerConfig{
			Spec:          envOr("RENEWAL_SCHEDULE", "@every 15m"),
			RenewalPolicy: policy,
			Concurrency:   concurrency,
			Disabled:      schedulerDisabled,
		},
		Auth: AuthConfig{
			Issuer:   strings.TrimSpace(os.Getenv("AUTH_ISSUER")),
			Audience: strings.TrimSpace(os.Getenv("AUTH_AUDIENCE")),
			JWKSURL:  strings.TrimSpace(os.Getenv("AUTH_JWKS_URL")),
		},
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("error converting string to int: %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", key, err)
	}
	return d, nil
}
