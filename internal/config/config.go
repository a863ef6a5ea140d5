// Package config loads ratehub settings from the environment, an optional
// .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Storage   Storage   `yaml:"storage"`
	Cache     Cache     `yaml:"cache"`
	Engine    Engine    `yaml:"engine"`
	Providers Providers `yaml:"providers"`
	Refresh   Refresh   `yaml:"refresh"`
	Alert     Alert     `yaml:"alert"`
	Log       Log       `yaml:"log"`
	Auth      Auth      `yaml:"auth"`
}

type HTTP struct {
	Addr         string        `yaml:"addr" env:"RATEHUB_HTTP_ADDR" env-default:":8000"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"RATEHUB_HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"RATEHUB_HTTP_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"RATEHUB_HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type Storage struct {
	// Driver is one of memory, sqlite, postgres, postgrespool.
	Driver string `yaml:"driver" env:"RATEHUB_DB_DRIVER" env-default:"sqlite"`
	DSN    string `yaml:"dsn" env:"RATEHUB_DB_DSN" env-default:"ratehub.db"`
}

type Cache struct {
	// Driver is memory or redis.
	Driver          string        `yaml:"driver" env:"RATEHUB_CACHE_DRIVER" env-default:"memory"`
	RedisAddr       string        `yaml:"redis_addr" env:"RATEHUB_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword   string        `yaml:"redis_password" env:"RATEHUB_REDIS_PASSWORD"`
	RedisDB         int           `yaml:"redis_db" env:"RATEHUB_REDIS_DB" env-default:"0"`
	Prefix          string        `yaml:"prefix" env:"RATEHUB_CACHE_PREFIX" env-default:"ratehub:"`
	SuccessTTL      time.Duration `yaml:"success_ttl" env:"RATEHUB_CACHE_SUCCESS_TTL" env-default:"30m"`
	FailureTTL      time.Duration `yaml:"failure_ttl" env:"RATEHUB_CACHE_FAILURE_TTL" env-default:"1m"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"RATEHUB_CACHE_CLEANUP_INTERVAL" env-default:"5m"`
}

type Engine struct {
	BaseCurrency   string   `yaml:"base_currency" env:"RATEHUB_BASE_CURRENCY" env-default:"GHS"`
	DefaultTargets []string `yaml:"default_targets" env:"RATEHUB_DEFAULT_TARGETS" env-default:"USD,EUR,GBP" env-separator:","`
}

type Providers struct {
	// Order lists provider keys in chain order. Empty means registry
	// priority order.
	Order         []string      `yaml:"order" env:"RATEHUB_PROVIDERS" env-separator:","`
	Timeout       time.Duration `yaml:"timeout" env:"RATEHUB_PROVIDER_TIMEOUT" env-default:"10s"`
	SkipTLSVerify bool          `yaml:"skip_tls_verify" env:"RATEHUB_PROVIDER_SKIP_TLS_VERIFY" env-default:"false"`

	BOGURL string `yaml:"bog_url" env:"RATEHUB_BOG_URL"`

	ExchangeRateAPIURL string `yaml:"exchangerateapi_url" env:"RATEHUB_EXCHANGERATEAPI_URL"`
	ExchangeRateAPIKey string `yaml:"exchangerateapi_key" env:"RATEHUB_EXCHANGERATEAPI_KEY"`

	FixerURL   string `yaml:"fixer_url" env:"RATEHUB_FIXER_URL"`
	FixerKey   string `yaml:"fixer_key" env:"RATEHUB_FIXER_KEY"`
	FixerPivot string `yaml:"fixer_pivot" env:"RATEHUB_FIXER_PIVOT" env-default:"EUR"`
}

type Refresh struct {
	// Schedule is integer seconds or a cron expression.
	Schedule string `yaml:"schedule" env:"RATEHUB_REFRESH_SCHEDULE" env-default:"@every 30m"`
	// InProcess runs the refresh worker inside serve.
	InProcess bool `yaml:"in_process" env:"RATEHUB_REFRESH_IN_PROCESS" env-default:"true"`
}

type Alert struct {
	WebhookURL             string        `yaml:"webhook_url" env:"RATEHUB_ALERT_WEBHOOK_URL"`
	WebhookType            string        `yaml:"webhook_type" env:"RATEHUB_ALERT_WEBHOOK_TYPE"`
	MinConsecutiveFailures int           `yaml:"min_consecutive_failures" env:"RATEHUB_ALERT_MIN_FAILURES" env-default:"1"`
	Timeout                time.Duration `yaml:"timeout" env:"RATEHUB_ALERT_TIMEOUT" env-default:"10s"`
	SendGridAPIKey         string        `yaml:"sendgrid_api_key" env:"RATEHUB_SENDGRID_API_KEY"`
	EmailFrom              string        `yaml:"email_from" env:"RATEHUB_ALERT_EMAIL_FROM" env-default:"alerts@ratehub.local"`
	EmailFromName          string        `yaml:"email_from_name" env:"RATEHUB_ALERT_EMAIL_FROM_NAME" env-default:"ratehub"`
	EmailTo                []string      `yaml:"email_to" env:"RATEHUB_ALERT_EMAIL_TO" env-separator:","`
}

type Log struct {
	Level  string `yaml:"level" env:"RATEHUB_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"RATEHUB_LOG_FORMAT" env-default:"text"`
	Prefix string `yaml:"prefix" env:"RATEHUB_LOG_PREFIX" env-default:"ratehub"`
	// TimeFormat is a Go layout string.
	TimeFormat string `yaml:"time_format" env:"RATEHUB_LOG_TIME_FORMAT" env-default:"2006-01-02 15:04:05"`
	Caller     bool   `yaml:"caller" env:"RATEHUB_LOG_CALLER" env-default:"false"`
}

type Auth struct {
	// Tokens are "name:role:bcrypt-hash" entries.
	Tokens []string `yaml:"tokens" env:"RATEHUB_API_TOKENS" env-separator:","`
}

// Load reads .env (if present), then CONFIG_PATH (if set), then the
// environment, which wins over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	c.Engine.BaseCurrency = strings.ToUpper(strings.TrimSpace(c.Engine.BaseCurrency))
	if len(c.Engine.BaseCurrency) != 3 {
		return fmt.Errorf("base currency %q must be a three letter code", c.Engine.BaseCurrency)
	}
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres", "postgrespool":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache driver %q", c.Cache.Driver)
	}
	if c.Cache.FailureTTL > c.Cache.SuccessTTL {
		return fmt.Errorf("cache failure ttl %s exceeds success ttl %s", c.Cache.FailureTTL, c.Cache.SuccessTTL)
	}
	return nil
}

// Usage describes every supported environment variable.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}
