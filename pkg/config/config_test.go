package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/icl/core/pkg/config"
	"github.com/Mindburn-Labs/icl/core/pkg/limiter"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ICL_HTTP_ADDR", "")
	t.Setenv("ICL_STORE", "")
	t.Setenv("ICL_ARCHIVE", "")
	t.Setenv("ICL_RATE_LIMIT", "")
	t.Setenv("ICL_SHUTDOWN_GRACE", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, config.StoreMemory, cfg.StoreBackend)
	require.Equal(t, config.ArchiveFile, cfg.ArchiveBackend)
	require.Equal(t, "archives", cfg.ArchiveDir)
	require.Equal(t, 300, cfg.RateLimit)
	require.Equal(t, 50, cfg.RateBurst)
	require.Equal(t, 10*time.Second, cfg.ShutdownGrace)
	require.Equal(t, "primary", cfg.SigningKeyID)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ICL_HTTP_ADDR", "127.0.0.1:9090")
	t.Setenv("ICL_STORE", "postgres")
	t.Setenv("ICL_POSTGRES_DSN", "postgres://icl@localhost:5432/icl?sslmode=disable")
	t.Setenv("ICL_REDIS_ADDR", "localhost:6379")
	t.Setenv("ICL_RATE_LIMIT", "120")
	t.Setenv("ICL_ARCHIVE", "s3")
	t.Setenv("ICL_ARCHIVE_BUCKET", "icl-evidence")
	t.Setenv("ICL_SHUTDOWN_GRACE", "30s")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9090", cfg.HTTPAddr)
	require.Equal(t, config.StorePostgres, cfg.StoreBackend)
	require.Equal(t, "postgres://icl@localhost:5432/icl?sslmode=disable", cfg.PostgresDSN)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, 120, cfg.RateLimit)
	require.Equal(t, "icl-evidence", cfg.ArchiveBucket)
	require.Equal(t, 30*time.Second, cfg.ShutdownGrace)
	require.Equal(t, limiter.Policy{PerMinute: 120, Burst: 50}, cfg.LimiterPolicy())
}

func TestValidateRejects(t *testing.T) {
	base := func() config.Config {
		return config.Config{
			StoreBackend:   config.StoreMemory,
			ArchiveBackend: config.ArchiveFile,
			ArchiveDir:     "archives",
			RateLimit:      300,
			RateBurst:      50,
		}
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown store", func(c *config.Config) { c.StoreBackend = "dynamo" }, "unknown store backend"},
		{"postgres without dsn", func(c *config.Config) { c.StoreBackend = config.StorePostgres }, "ICL_POSTGRES_DSN"},
		{"sqlite without path", func(c *config.Config) { c.StoreBackend = config.StoreSQLite }, "ICL_SQLITE_PATH"},
		{"unknown archive", func(c *config.Config) { c.ArchiveBackend = "tape" }, "unknown archive backend"},
		{"s3 without bucket", func(c *config.Config) { c.ArchiveBackend = config.ArchiveS3 }, "ICL_ARCHIVE_BUCKET"},
		{"zero rate limit", func(c *config.Config) { c.RateLimit = 0 }, "rate limit"},
		{"zero burst", func(c *config.Config) { c.RateBurst = 0 }, "rate burst"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}

	valid := base()
	require.NoError(t, valid.Validate())
}

func TestLoadProfile(t *testing.T) {
	cfg := config.Config{}
	p, err := cfg.LoadProfile()
	require.NoError(t, err)
	require.Equal(t, "default", p.Name)

	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: custom\nversion: 2.0.0\n"), 0o600))
	cfg.ProfilePath = path

	p, err = cfg.LoadProfile()
	require.NoError(t, err)
	require.Equal(t, "custom", p.Name)

	cfg.ProfilePath = filepath.Join(t.TempDir(), "absent.yaml")
	_, err = cfg.LoadProfile()
	require.Error(t, err)
}
