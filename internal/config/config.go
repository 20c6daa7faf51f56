package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the dashboard configuration, loaded from the environment
type Config struct {
	AppEnv   string         `env:"APP_ENV" envDefault:"local"`
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Gateway  GatewayConfig  `envPrefix:"GATEWAY_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Logging  LoggingConfig  `envPrefix:"LOG_"`
	Export   ExportConfig   `envPrefix:"EXPORT_"`
}

// ServerConfig configures the dashboard HTTP API
type ServerConfig struct {
	Host         string        `env:"HOST" envDefault:"0.0.0.0"`
	Port         int           `env:"PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
}

// GatewayConfig configures the remote site analysis service
type GatewayConfig struct {
	BaseURL      string        `env:"BASE_URL" envDefault:"http://localhost:8000/api"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"30s"`
	RateLimitRPS float64       `env:"RATE_LIMIT_RPS" envDefault:"0"`
}

// DatabaseConfig configures the optional calculation history store.
// History is disabled when DSN is empty.
type DatabaseConfig struct {
	DSN             string        `env:"DSN"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
}

// LoggingConfig configures log verbosity
type LoggingConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

// ExportConfig configures where exported site files are saved
type ExportConfig struct {
	Dir string `env:"DIR" envDefault:"./exports"`
}

// LoadConfig reads an optional .env file and parses the environment
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// HistoryEnabled reports whether a calculation history database is configured
func (c *Config) HistoryEnabled() bool {
	return strings.TrimSpace(c.Database.DSN) != ""
}

// IsLocal reports whether the process runs in a local development environment
func (c *Config) IsLocal() bool {
	return c.AppEnv == "local"
}

// Validate checks the configuration for values that would fail at runtime
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port))
	}

	u, err := url.Parse(c.Gateway.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("GATEWAY_BASE_URL invalid: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("GATEWAY_BASE_URL must be http(s), got %q", c.Gateway.BaseURL))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("GATEWAY_BASE_URL has no host: %q", c.Gateway.BaseURL))
	}

	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}

	if c.Gateway.RateLimitRPS < 0 {
		errs = append(errs, errors.New("GATEWAY_RATE_LIMIT_RPS must not be negative"))
	}

	// Migrations hold one connection for the advisory lock and need another to run.
	if c.HistoryEnabled() && c.Database.MaxOpenConns < 2 {
		errs = append(errs, errors.New("DATABASE_MAX_OPEN_CONNS must be at least 2"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL unknown: %q", c.Logging.Level))
	}

	if strings.TrimSpace(c.Export.Dir) == "" {
		errs = append(errs, errors.New("EXPORT_DIR must not be empty"))
	}

	return errors.Join(errs...)
}
