// Package config loads gateway configuration from a YAML file, a local .env
// file, and environment variable overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	Environment string       `yaml:"environment"`
	Server      ServerConfig `yaml:"server"`
	Origins     OriginConfig `yaml:"origins"`
	RateLimit   RateConfig   `yaml:"rate_limit"`
	Policy      PolicyConfig `yaml:"policy"`
	Store       StoreConfig  `yaml:"store"`
	Redis       RedisConfig  `yaml:"redis"`
	Session     SessionConfig `yaml:"session"`
	SecurityLog LogConfig    `yaml:"security_log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OriginConfig holds the production origin allow-list.
type OriginConfig struct {
	Allowed []string `yaml:"allowed"`
}

// RateConfig holds both limiter layers: the sliding-window auth-attempt
// limiter and the global per-IP request limiter.
type RateConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backend     string        `yaml:"backend"` // "memory" or "redis"
	GlobalRPS   int           `yaml:"global_rps"`
	GlobalBurst int           `yaml:"global_burst"`
}

// PolicyConfig holds credential policy settings.
type PolicyConfig struct {
	EnforcePasswordStrength bool     `yaml:"enforce_password_strength"`
	DisposableDomains       []string `yaml:"disposable_domains"`
}

// StoreConfig selects and configures the account store backend.
type StoreConfig struct {
	Backend     string        `yaml:"backend"` // "memory" or "postgres"
	PostgresDSN string        `yaml:"postgres_dsn"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RedisConfig configures the optional redis rate-limit backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig holds token issuance settings.
type SessionConfig struct {
	Secret     string        `yaml:"secret"`
	TTL        time.Duration `yaml:"ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
	Issuer     string        `yaml:"issuer"`
}

// LogConfig holds security log settings.
type LogConfig struct {
	Buffer   int `yaml:"buffer"`
	PageSize int `yaml:"page_size"`
}

// IsProduction reports whether the gateway runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads configuration from path (or the default config/gateway.yaml),
// merges a .env file when present, and applies environment overrides.
func Load(path string) (*Config, error) {
	// .env is optional; environment wins over it either way.
	_ = godotenv.Load()

	cfg := defaults()

	if path == "" {
		path = filepath.Join("config", "gateway.yaml")
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		RateLimit: RateConfig{
			Window:      15 * time.Minute,
			MaxAttempts: 10,
			Backend:     "memory",
			GlobalRPS:   50,
			GlobalBurst: 100,
		},
		Policy: PolicyConfig{
			EnforcePasswordStrength: false,
		},
		Store: StoreConfig{
			Backend: "memory",
			Timeout: 5 * time.Second,
		},
		Session: SessionConfig{
			TTL:        24 * time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
			Issuer:     "auth-gateway",
		},
		SecurityLog: LogConfig{
			Buffer:   1024,
			PageSize: 50,
		},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GATEWAY_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("GATEWAY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("GATEWAY_JWT_SECRET"); v != "" {
		cfg.Session.Secret = v
	}
	if v := os.Getenv("GATEWAY_POSTGRES_DSN"); v != "" {
		cfg.Store.PostgresDSN = v
		cfg.Store.Backend = "postgres"
	}
	if v := os.Getenv("GATEWAY_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("GATEWAY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.MaxAttempts = n
		}
	}
}

func (c *Config) validate() error {
	if c.Store.Backend != "memory" && c.Store.Backend != "postgres" {
		return fmt.Errorf("store backend %q is not supported", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresDSN == "" {
		return fmt.Errorf("postgres store requires a DSN")
	}
	if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
		return fmt.Errorf("rate limit backend %q is not supported", c.RateLimit.Backend)
	}
	if c.RateLimit.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis rate limit backend requires an address")
	}
	if c.IsProduction() && c.Session.Secret == "" {
		return fmt.Errorf("session secret is required in production")
	}
	if c.RateLimit.MaxAttempts <= 0 {
		return fmt.Errorf("rate limit max attempts must be positive")
	}
	return nil
}
