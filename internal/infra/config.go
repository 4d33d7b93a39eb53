package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store drivers understood by LoadConfig.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	StoreDriver string
	DatabaseURL string
	JWTSecret   string
	StoragePath string
	CORSOrigins []string

	AggregatorAPIKey      string
	AggregatorBaseURL     string
	AggregatorCallbackURL string
	AggregatorRatePerSec  int

	PaymentSecretKey string
	PaymentBaseURL   string
	PaymentCurrency  string

	GenerationModels string
	PollInterval     time.Duration
	MaxJobLifetime   time.Duration
	SweepSchedule    string
	FFmpegPath       string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		StoragePath: getEnv("STORAGE_PATH", "./storage"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),

		AggregatorAPIKey:      os.Getenv("AGGREGATOR_API_KEY"),
		AggregatorBaseURL:     getEnv("AGGREGATOR_BASE_URL", "https://api.kie.ai"),
		AggregatorCallbackURL: os.Getenv("AGGREGATOR_CALLBACK_URL"),
		AggregatorRatePerSec:  getEnvInt("AGGREGATOR_RATE_PER_SECOND", 5),

		PaymentSecretKey: os.Getenv("PAYMENT_SECRET_KEY"),
		PaymentBaseURL:   getEnv("PAYMENT_BASE_URL", "https://api.omise.co"),
		PaymentCurrency:  getEnv("PAYMENT_CURRENCY", "thb"),

		GenerationModels: os.Getenv("GENERATION_MODELS"),
		PollInterval:     getEnvDuration("POLL_INTERVAL", 2*time.Minute),
		MaxJobLifetime:   getEnvDuration("MAX_JOB_LIFETIME", 30*time.Minute),
		SweepSchedule:    getEnv("SWEEP_SCHEDULE", "@every 5m"),
		FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverMemory:
		if cfg.JWTSecret == "" {
			// tokens only need to verify within this process
			cfg.JWTSecret = uuid.NewString()
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if cfg.MaxJobLifetime < cfg.PollInterval {
		return nil, fmt.Errorf("MAX_JOB_LIFETIME must be at least POLL_INTERVAL")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
