package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends accepted in STORE_BACKEND.
const (
	StoreNone     = ""
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

const (
	defaultSessionTTLSeconds  = 60 * 60 * 24
	defaultRateWindowSeconds  = 60
	defaultRateMaxFails       = 8
	defaultRateLockSeconds    = 5 * 60
	minProductionSecretLength = 32
)

// Config holds application configuration
type Config struct {
	Port           string `env:"PORT" envDefault:"8080"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://localhost:8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"text"`

	StoreBackend   string `env:"STORE_BACKEND"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisURL       string `env:"REDIS_URL"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"navdir"`
	RabbitMQURL    string `env:"RABBITMQ_URL"`

	AdminUsername       string `env:"ADMIN_USERNAME"`
	AdminPasswordSHA256 string `env:"ADMIN_PASSWORD_SHA256"`
	SessionSecret       string `env:"SESSION_SECRET"`

	// Numeric knobs are read as text so that a malformed value falls back to
	// its default instead of failing startup.
	SessionTTLSeconds           string `env:"SESSION_TTL_SECONDS"`
	LoginRateLimitWindowSeconds string `env:"LOGIN_RATE_LIMIT_WINDOW_SECONDS"`
	LoginRateLimitMaxFails      string `env:"LOGIN_RATE_LIMIT_MAX_FAILS"`
	LoginRateLimitLockSeconds   string `env:"LOGIN_RATE_LIMIT_LOCK_SECONDS"`

	AllowDevDefaultAdmin string `env:"ALLOW_DEV_DEFAULT_ADMIN"`
	DevAdminUsername     string `env:"DEV_ADMIN_USERNAME"`
	DevAdminPassword     string `env:"DEV_ADMIN_PASSWORD"`
	DevSessionSecret     string `env:"DEV_SESSION_SECRET"`

	AppVersion string `env:"APP_VERSION"`
	AppCommit  string `env:"APP_COMMIT"`
	BuildTime  string `env:"BUILD_TIME"`

	StoreCleanupInterval time.Duration `env:"STORE_CLEANUP_INTERVAL" envDefault:"1h"`
}

// Load reads .env (when present) and the process environment, then validates
// the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := Parse(env.Options{})
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse reads the configuration without touching .env files or validating.
func Parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	return cfg, nil
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreNone, StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL must be set when STORE_BACKEND=redis")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want memory, redis or postgres)", c.StoreBackend)
	}

	if c.IsProduction() {
		if c.SessionSecret != "" && len(c.SessionSecret) < minProductionSecretLength {
			return fmt.Errorf("SESSION_SECRET must be at least %d characters in production (got %d)", minProductionSecretLength, len(c.SessionSecret))
		}

		if c.DevAdminEnabled() {
			return errors.New("ALLOW_DEV_DEFAULT_ADMIN must not be enabled in production")
		}

		if c.StoreBackend == StoreMemory {
			slog.Warn("STORE_BACKEND=memory loses the config document on restart")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

// DevAdminEnabled reports whether ALLOW_DEV_DEFAULT_ADMIN is truthy.
func (c *Config) DevAdminEnabled() bool {
	return IsTruthy(c.AllowDevDefaultAdmin)
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(PositiveInt(c.SessionTTLSeconds, defaultSessionTTLSeconds)) * time.Second
}

func (c *Config) LoginRateWindow() time.Duration {
	return time.Duration(PositiveInt(c.LoginRateLimitWindowSeconds, defaultRateWindowSeconds)) * time.Second
}

func (c *Config) LoginRateMaxFails() int {
	return PositiveInt(c.LoginRateLimitMaxFails, defaultRateMaxFails)
}

func (c *Config) LoginRateLock() time.Duration {
	return time.Duration(PositiveInt(c.LoginRateLimitLockSeconds, defaultRateLockSeconds)) * time.Second
}

// IsTruthy accepts 1, true, yes and on, case-insensitively.
func IsTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// PositiveInt parses raw as a number and truncates it. Empty, non-numeric,
// non-finite and values below one yield fallback.
func PositiveInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return fallback
	}
	n = math.Floor(n)
	if n < 1 || n > math.MaxInt32 {
		return fallback
	}
	return int(n)
}
