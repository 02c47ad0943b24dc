package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// serverConfig is the process configuration. Values come from the
// defaults below, then the optional YAML file, then OTCAUTH_* variables.
type serverConfig struct {
	LogDev bool `yaml:"log_dev" env:"OTCAUTH_LOG_DEV"`

	JWT struct {
		Secret    string        `yaml:"secret" env:"OTCAUTH_JWT_SECRET"`
		Issuer    string        `yaml:"issuer" env:"OTCAUTH_JWT_ISSUER"`
		BearerTTL time.Duration `yaml:"bearer_ttl" env:"OTCAUTH_BEARER_TTL"`
	} `yaml:"jwt"`

	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"OTCAUTH_REFRESH_TTL"`
	OTCTTL     time.Duration `yaml:"otc_ttl" env:"OTCAUTH_OTC_TTL"`
	ResetTTL   time.Duration `yaml:"reset_ttl" env:"OTCAUTH_RESET_TTL"`

	Redis struct {
		Addr     string `yaml:"addr" env:"OTCAUTH_REDIS_ADDR"`
		Password string `yaml:"password" env:"OTCAUTH_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"OTCAUTH_REDIS_DB"`
		PoolSize int    `yaml:"pool_size" env:"OTCAUTH_REDIS_POOL_SIZE"`
	} `yaml:"redis"`

	Database struct {
		Driver     string `yaml:"driver" env:"OTCAUTH_DB_DRIVER"`
		DSN        string `yaml:"dsn" env:"OTCAUTH_DB_DSN"`
		Migrations bool   `yaml:"migrations" env:"OTCAUTH_MIGRATIONS"`
	} `yaml:"database"`

	HTTP struct {
		Addr        string   `yaml:"addr" env:"OTCAUTH_HTTP_ADDR"`
		CORSOrigins []string `yaml:"cors_origins" env:"OTCAUTH_CORS_ORIGIN" envSeparator:","`
		RatePerSec  float64  `yaml:"rate_per_sec" env:"OTCAUTH_RATE_PER_SEC"`
		RateBurst   int      `yaml:"rate_burst" env:"OTCAUTH_RATE_BURST"`
		TrustProxy  bool     `yaml:"trust_proxy" env:"OTCAUTH_TRUST_PROXY"`
	} `yaml:"http"`

	Cookie struct {
		Secure bool   `yaml:"secure" env:"OTCAUTH_COOKIE_SECURE"`
		Domain string `yaml:"domain" env:"OTCAUTH_COOKIE_DOMAIN"`
	} `yaml:"cookie"`

	AuditEnabled   bool `yaml:"audit_enabled" env:"OTCAUTH_AUDIT_ENABLED"`
	MetricsEnabled bool `yaml:"metrics_enabled" env:"OTCAUTH_METRICS_ENABLED"`
}

func defaultServerConfig() serverConfig {
	var c serverConfig
	c.JWT.Issuer = "otcauth"
	c.JWT.BearerTTL = 600 * time.Second
	c.RefreshTTL = 28800 * time.Second
	c.OTCTTL = 600 * time.Second
	c.ResetTTL = 600 * time.Second
	c.Redis.PoolSize = 10
	c.Database.Driver = "memory"
	c.Database.Migrations = true
	c.HTTP.Addr = ":8080"
	c.HTTP.RatePerSec = 5
	c.HTTP.RateBurst = 10
	c.Cookie.Secure = true
	c.MetricsEnabled = true
	return c
}

// loadConfig reads path (when non-empty) and applies the environment.
func loadConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if cfg.JWT.Secret == "" {
		return cfg, errors.New("OTCAUTH_JWT_SECRET is required")
	}
	switch cfg.Database.Driver {
	case "memory":
	case "sqlite", "postgres", "pgx":
		if cfg.Database.DSN == "" {
			return cfg, fmt.Errorf("OTCAUTH_DB_DSN is required for driver %q", cfg.Database.Driver)
		}
	default:
		return cfg, fmt.Errorf("unsupported OTCAUTH_DB_DRIVER %q (supported: memory, sqlite, postgres, pgx)", cfg.Database.Driver)
	}
	return cfg, nil
}
