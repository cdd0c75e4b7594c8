package app

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	AppRateLimit      int           `envconfig:"APP_RATE_LIMIT" default:"300"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// PGDSN enables the postgres stock provider, audit log and idempotency
	// store. Leave empty to run against the backend only.
	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"8"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	StockCacheTTL time.Duration `envconfig:"STOCK_CACHE_TTL" default:"60s"`

	BackendURL     string        `envconfig:"BACKEND_URL" required:"true"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`
	BackendToken   string        `envconfig:"BACKEND_TOKEN"`

	SessionIdleTTL      time.Duration `envconfig:"SESSION_IDLE_TTL" default:"2h"`
	SubmitRatePerMinute int           `envconfig:"SUBMIT_RATE_PER_MINUTE" default:"20"`
	IdempotencyTTL      time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`

	StockRefreshCron   string        `envconfig:"STOCK_REFRESH_CRON" default:"*/5 * * * *"`
	StockRefreshWindow time.Duration `envconfig:"STOCK_REFRESH_WINDOW" default:"1h"`
	WorkerConcurrency  int           `envconfig:"WORKER_CONCURRENCY" default:"5"`

	DefaultLocale string `envconfig:"DEFAULT_LOCALE" default:"en"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("backend url must be provided")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend url %q must be absolute", c.BackendURL)
	}
	if c.BackendTimeout <= 0 {
		return errors.New("backend timeout must be positive")
	}
	if c.SessionIdleTTL <= 0 {
		return errors.New("session idle ttl must be positive")
	}
	if c.SubmitRatePerMinute < 0 {
		return errors.New("submit rate must not be negative")
	}
	if c.WorkerConcurrency < 1 {
		return errors.New("worker concurrency must be at least 1")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// HasDatabase reports whether a postgres DSN is configured.
func (c *Config) HasDatabase() bool {
	return c != nil && c.PGDSN != ""
}
