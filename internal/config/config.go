// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// Backend names accepted in CALLCACHE_BACKEND
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	Port     string `env:"CALLCACHE_PORT" envDefault:"8080"`
	Backend  string `env:"CALLCACHE_BACKEND" envDefault:"redis"`
	LogLevel string `env:"CALLCACHE_LOG_LEVEL" envDefault:"info"`
	// APIToken guards every route except /healthz. When empty the api is
	// open: any client can use /fetch and /fetch/warm to make the server GET
	// arbitrary urls, internal addresses included.
	APIToken string `env:"CALLCACHE_API_TOKEN"`

	Redis RedisConfig
	Fetch FetchConfig
	Jobs  JobsConfig
}

// RedisConfig holds the key-value backend connection
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// FetchConfig holds URL fetch cache settings
type FetchConfig struct {
	TTL         time.Duration `env:"CALLCACHE_URL_TTL" envDefault:"10s"`
	Timeout     time.Duration `env:"CALLCACHE_FETCH_TIMEOUT" envDefault:"10s"`
	UserAgent   string        `env:"CALLCACHE_USER_AGENT" envDefault:"callcache/1.0"`
	Parallelism int           `env:"CALLCACHE_WARM_PARALLELISM" envDefault:"4"`
}

// JobsConfig holds background worker settings
type JobsConfig struct {
	Concurrency int `env:"CALLCACHE_WORKER_CONCURRENCY" envDefault:"4"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Level returns the parsed log level
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks values env tags cannot express
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("CALLCACHE_BACKEND must be %q or %q, got %q", BackendRedis, BackendMemory, c.Backend)
	}
	if c.Backend == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required for the redis backend")
	}
	if c.Fetch.TTL <= 0 {
		return fmt.Errorf("CALLCACHE_URL_TTL must be positive, got %s", c.Fetch.TTL)
	}
	if c.Fetch.Parallelism < 1 {
		return fmt.Errorf("CALLCACHE_WARM_PARALLELISM must be at least 1, got %d", c.Fetch.Parallelism)
	}
	if c.Jobs.Concurrency < 1 {
		return fmt.Errorf("CALLCACHE_WORKER_CONCURRENCY must be at least 1, got %d", c.Jobs.Concurrency)
	}
	return nil
}

// Warnings lists settings that are valid but unsafe outside local use
func (c *Config) Warnings() []string {
	var w []string
	if c.APIToken == "" {
		w = append(w, "CALLCACHE_API_TOKEN is empty, /fetch and /fetch/warm will fetch any url for any client")
	}
	return w
}
