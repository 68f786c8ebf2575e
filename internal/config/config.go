// Package config loads service settings from the environment, optionally
// seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Store drivers.
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// EnvProduction is the environment name that hides internal error detail.
const EnvProduction = "production"

// Config holds every setting the service reads at startup.
type Config struct {
	ServiceName string `env:"SERVICE_NAME,default=items-api"`
	Version     string `env:"SERVICE_VERSION,default=1.0.0"`
	Environment string `env:"APP_ENV,default=development"`

	HTTPAddr        string        `env:"HTTP_ADDR,default=:9090"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=5s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=10s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT,default=120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`
	ReadyTimeout    time.Duration `env:"READY_TIMEOUT,default=2s"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	StoreDriver   string `env:"STORE_DRIVER,default=redis"`
	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	DatabaseURL  string `env:"DATABASE_URL"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS,default=5"`

	// APIKeys is a comma-separated list of bearer tokens accepted on /api.
	// Empty disables authentication.
	APIKeys string `env:"API_KEYS"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=0"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=20"`
}

// Load reads envFiles into the process environment (missing files are
// skipped, existing variables win) and decodes Config from it.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.HTTPAddr == "" {
		errs = errs.Append("HTTP_ADDR", errors.New("cannot be empty"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = errs.Append("LOG_LEVEL", err)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = errs.Append("LOG_FORMAT", fmt.Errorf("must be json or console, got %q", c.LogFormat))
	}

	switch c.StoreDriver {
	case DriverRedis:
		if c.RedisAddr == "" {
			errs = errs.Append("REDIS_ADDR", errors.New("required for the redis driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = errs.Append("DATABASE_URL", errors.New("required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = errs.Append("STORE_DRIVER", fmt.Errorf("unknown driver %q", c.StoreDriver))
	}

	if c.RateLimitRPS < 0 {
		errs = errs.Append("RATE_LIMIT_RPS", errors.New("cannot be negative"))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = errs.Append("RATE_LIMIT_BURST", errors.New("must be at least 1 when rate limiting is enabled"))
	}
	if c.ReadyTimeout <= 0 {
		errs = errs.Append("READY_TIMEOUT", errors.New("must be positive"))
	}

	return errs.ToError()
}

// Production reports whether internal error detail must be hidden from clients.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// Keys parses APIKeys into a set.
func (c *Config) Keys() map[string]struct{} {
	keys := make(map[string]struct{})
	for _, k := range strings.Split(c.APIKeys, ",") {
		if v := strings.TrimSpace(k); v != "" {
			keys[v] = struct{}{}
		}
	}
	return keys
}
