package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const pricePrefix = "STRIPE_PRICE_"

type Config struct {
	Env string

	DatabaseURL string
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	SSLMode     string

	StripeSecretKey     string
	StripeWebhookSecret string
	// StripePrices maps upper-case plan ids to Stripe price ids.
	StripePrices map[string]string

	SendGridAPIKey string
	FromEmail      string
	AppURL         string

	ApiPort        string
	ApiEnabled     string
	MetricsEnabled bool

	BusProvider string
	NatsHost    string
	NatsPort    string

	CacheProvider string
	CacheTTL      time.Duration
	CacheSweep    time.Duration
	RedisHost     string
	RedisPort     string

	OrgLookupAttempts int
}

// New loads and validates configuration from environment variables.
// A .env file is loaded first when present. The database is the only hard
// requirement; Stripe and SendGrid degrade to "not configured" responses.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                 firstEnv("APP_ENV", "NODE_ENV"),
		DatabaseURL:         firstEnv("SUPABASE_DB_URL", "DATABASE_URL"),
		DBUser:              os.Getenv("ARMONYCO_POSTGRES_USER"),
		DBPass:              os.Getenv("ARMONYCO_POSTGRES_PASSWORD"),
		DBHost:              os.Getenv("ARMONYCO_POSTGRES_HOST"),
		DBPort:              getEnv("ARMONYCO_POSTGRES_PORT", "5432"),
		DBName:              os.Getenv("ARMONYCO_POSTGRES_DB"),
		SSLMode:             getEnv("ARMONYCO_POSTGRES_SSLMODE", "require"),
		StripeSecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		StripePrices:        stripePrices(os.Environ()),
		SendGridAPIKey:      strings.TrimSpace(os.Getenv("SENDGRID_API_KEY")),
		FromEmail:           getEnv("FROM_EMAIL", "noreply@armonyco.com"),
		AppURL:              strings.TrimRight(getEnv("APP_URL", "http://localhost:5173"), "/"),
		ApiPort:             getEnv("ARMONYCO_API_PORT", "8080"),
		ApiEnabled:          getEnv("ARMONYCO_API_ENABLED", "true"),
		MetricsEnabled:      os.Getenv("ARMONYCO_METRICS_ENABLED") == "true",
		BusProvider:         getEnv("ARMONYCO_BUS_PROVIDER", "none"),
		NatsHost:            os.Getenv("ARMONYCO_NATS_HOST"),
		NatsPort:            getEnv("ARMONYCO_NATS_PORT", "4222"),
		CacheProvider:       getEnv("ARMONYCO_CACHE_PROVIDER", "memory"),
		CacheTTL:            time.Duration(getEnvInt("ARMONYCO_CACHE_TTL_MS", 5000)) * time.Millisecond,
		CacheSweep:          time.Duration(getEnvInt("ARMONYCO_CACHE_SWEEP_MS", 60000)) * time.Millisecond,
		RedisHost:           os.Getenv("ARMONYCO_REDIS_HOST"),
		RedisPort:           getEnv("ARMONYCO_REDIS_PORT", "6379"),
		OrgLookupAttempts:   getEnvInt("ARMONYCO_ORG_LOOKUP_ATTEMPTS", 5),
	}

	// Required: database
	if cfg.DatabaseURL == "" && (cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "") {
		return nil, fmt.Errorf("missing required env for database: SUPABASE_DB_URL or ARMONYCO_POSTGRES_USER/HOST/DB")
	}

	switch cfg.BusProvider {
	case "none":
	case "nats":
		if cfg.NatsHost == "" {
			return nil, fmt.Errorf("missing required env for nats bus: ARMONYCO_NATS_HOST")
		}
	default:
		return nil, fmt.Errorf("invalid bus provider %q, must be 'nats' or 'none'", cfg.BusProvider)
	}

	switch cfg.CacheProvider {
	case "memory":
	case "redis":
		if cfg.RedisHost == "" {
			return nil, fmt.Errorf("missing required env for redis cache: ARMONYCO_REDIS_HOST")
		}
	default:
		return nil, fmt.Errorf("invalid cache provider %q, must be 'memory' or 'redis'", cfg.CacheProvider)
	}

	if cfg.CacheTTL <= 0 || cfg.CacheSweep <= 0 {
		return nil, fmt.Errorf("ARMONYCO_CACHE_TTL_MS and ARMONYCO_CACHE_SWEEP_MS must be positive")
	}
	if cfg.OrgLookupAttempts < 1 {
		return nil, fmt.Errorf("ARMONYCO_ORG_LOOKUP_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// DSN prefers the Supabase connection URL and falls back to the discrete
// ARMONYCO_POSTGRES_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPass),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if ARMONYCO_API_ENABLED != "true"; callers should skip starting the HTTP server.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("ARMONYCO_API_PORT is required when ARMONYCO_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (ARMONYCO_API_ENABLED != true)")
}

func stripePrices(environ []string) map[string]string {
	prices := make(map[string]string)
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, pricePrefix) {
			continue
		}
		plan := strings.ToUpper(strings.TrimPrefix(key, pricePrefix))
		if val = strings.TrimSpace(val); plan != "" && val != "" {
			prices[plan] = val
		}
	}
	return prices
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
