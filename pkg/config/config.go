// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Mindburn-Labs/icl/core/pkg/limiter"
	"github.com/Mindburn-Labs/icl/core/pkg/profile"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Archive backends.
const (
	ArchiveFile = "file"
	ArchiveS3   = "s3"
	ArchiveGCS  = "gcs"
)

// Config holds the ledger service configuration.
type Config struct {
	HTTPAddr      string        `env:"ICL_HTTP_ADDR" envDefault:":8080"`
	LogLevel      string        `env:"ICL_LOG_LEVEL" envDefault:"info"`
	ShutdownGrace time.Duration `env:"ICL_SHUTDOWN_GRACE" envDefault:"10s"`

	StoreBackend string `env:"ICL_STORE" envDefault:"memory"`
	PostgresDSN  string `env:"ICL_POSTGRES_DSN"`
	SQLitePath   string `env:"ICL_SQLITE_PATH"`

	SigningSecret string `env:"ICL_SIGNING_SECRET"`
	SigningKeyID  string `env:"ICL_SIGNING_KEY_ID" envDefault:"primary"`

	ProfilePath string `env:"ICL_PROFILE"`

	RedisAddr string `env:"ICL_REDIS_ADDR"`
	// RateLimit is operations per minute per actor.
	RateLimit int `env:"ICL_RATE_LIMIT" envDefault:"300"`
	RateBurst int `env:"ICL_RATE_BURST" envDefault:"50"`

	ArchiveBackend string `env:"ICL_ARCHIVE" envDefault:"file"`
	ArchiveDir     string `env:"ICL_ARCHIVE_DIR" envDefault:"archives"`
	ArchiveBucket  string `env:"ICL_ARCHIVE_BUCKET"`

	OTLPEndpoint string `env:"ICL_OTLP_ENDPOINT"`

	AuthSecret string `env:"ICL_AUTH_SECRET"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend selectors and their required companions.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("config: store %q requires ICL_POSTGRES_DSN", c.StoreBackend)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: store %q requires ICL_SQLITE_PATH", c.StoreBackend)
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.StoreBackend)
	}

	switch c.ArchiveBackend {
	case ArchiveFile:
		if c.ArchiveDir == "" {
			return fmt.Errorf("config: archive %q requires ICL_ARCHIVE_DIR", c.ArchiveBackend)
		}
	case ArchiveS3, ArchiveGCS:
		if c.ArchiveBucket == "" {
			return fmt.Errorf("config: archive %q requires ICL_ARCHIVE_BUCKET", c.ArchiveBackend)
		}
	default:
		return fmt.Errorf("config: unknown archive backend %q", c.ArchiveBackend)
	}

	if c.RateLimit <= 0 {
		return fmt.Errorf("config: rate limit must be positive, got %d", c.RateLimit)
	}
	if c.RateBurst <= 0 {
		return fmt.Errorf("config: rate burst must be positive, got %d", c.RateBurst)
	}

	return nil
}

// LimiterPolicy maps the rate settings onto a limiter policy.
func (c *Config) LimiterPolicy() limiter.Policy {
	return limiter.Policy{PerMinute: c.RateLimit, Burst: c.RateBurst}
}

// LoadProfile resolves the accounting profile. An empty path selects the
// built-in default profile.
func (c *Config) LoadProfile() (*profile.Profile, error) {
	if c.ProfilePath == "" {
		return profile.Default(), nil
	}
	return profile.Load(c.ProfilePath)
}
