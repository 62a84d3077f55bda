package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"

	devSigningKey = "dev-only-signing-key"
)

type Config struct {
	Port                   string `mapstructure:"PORT"`
	Env                    string `mapstructure:"ENV"`
	DatabaseURL            string `mapstructure:"DB_DSN"`
	DBMaxConns             int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns             int32  `mapstructure:"DB_MIN_CONNS"`
	StoreBackend           string `mapstructure:"STORE_BACKEND"`
	FixturePath            string `mapstructure:"FIXTURE_PATH"`
	FixtureLatencyMS       int    `mapstructure:"FIXTURE_LATENCY_MS"`
	JWTSigningKey          string `mapstructure:"JWT_SIGNING_KEY"`
	TokenTTLMinutes        int    `mapstructure:"TOKEN_TTL_MINUTES"`
	DemoPassword           string `mapstructure:"DEMO_PASSWORD"`
	WaitTimeRefreshSeconds int    `mapstructure:"WAIT_TIME_REFRESH_SECONDS"`
	RateLimitPerMinute     int    `mapstructure:"RATE_LIMIT_PER_MIN"`
	RateLimitBurst         int    `mapstructure:"RATE_LIMIT_BURST"`
	LogLevel               string `mapstructure:"LOG_LEVEL"`
	LogFormat              string `mapstructure:"LOG_FORMAT"`
}

var keys = []string{
	"PORT", "ENV", "DB_DSN", "DB_MAX_CONNS", "DB_MIN_CONNS", "STORE_BACKEND",
	"FIXTURE_PATH", "FIXTURE_LATENCY_MS", "JWT_SIGNING_KEY", "TOKEN_TTL_MINUTES",
	"DEMO_PASSWORD", "WAIT_TIME_REFRESH_SECONDS", "RATE_LIMIT_PER_MIN",
	"RATE_LIMIT_BURST", "LOG_LEVEL", "LOG_FORMAT",
}

// Load reads configuration from the environment, falling back to an optional
// .env file in the working directory and then to defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("FIXTURE_LATENCY_MS", 0)
	v.SetDefault("JWT_SIGNING_KEY", devSigningKey)
	v.SetDefault("TOKEN_TTL_MINUTES", 480)
	v.SetDefault("DEMO_PASSWORD", "password123")
	v.SetDefault("WAIT_TIME_REFRESH_SECONDS", 60)
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("RATE_LIMIT_BURST", 30)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	// The .env file is optional.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
		if cfg.IsDev() {
			cfg.LogFormat = "console"
		}
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate reports the first setting that would keep the server from
// running safely.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("PORT is required")
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DB_DSN is required when STORE_BACKEND is %q", BackendPostgres)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendPostgres, c.StoreBackend)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.IsProduction() && (c.JWTSigningKey == "" || c.JWTSigningKey == devSigningKey) {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	if c.TokenTTLMinutes <= 0 {
		return fmt.Errorf("TOKEN_TTL_MINUTES must be positive")
	}
	if c.WaitTimeRefreshSeconds <= 0 {
		return fmt.Errorf("WAIT_TIME_REFRESH_SECONDS must be positive")
	}
	if c.FixtureLatencyMS < 0 {
		return fmt.Errorf("FIXTURE_LATENCY_MS must not be negative")
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN and RATE_LIMIT_BURST must be positive")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be \"json\" or \"console\", got %q", c.LogFormat)
	}
	return nil
}

func (c *Config) FixtureLatency() time.Duration {
	return time.Duration(c.FixtureLatencyMS) * time.Millisecond
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

func (c *Config) WaitTimeRefresh() time.Duration {
	return time.Duration(c.WaitTimeRefreshSeconds) * time.Second
}
