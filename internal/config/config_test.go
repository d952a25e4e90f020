package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "novacrawler.db", cfg.DB.Path)
	require.Equal(t, 10, cfg.Crawler.Workers)
	require.Equal(t, 2, cfg.Crawler.DefaultDepth)
	require.Equal(t, 100, cfg.Crawler.FaviconConcurrency)
	require.Equal(t, 3, cfg.HTTP.MaxAttempts)
	require.Equal(t, 5, cfg.HTTP.RetryDelaySeconds)
	require.Equal(t, "local", cfg.Storage.Provider)
	require.Equal(t, 30, cfg.Refresh.IntervalMinutes)
	require.Equal(t, 14, cfg.Refresh.StaleAfterDays)
	require.False(t, cfg.PubSub.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  path: /tmp/test.db
crawler:
  workers: 4
storage:
  provider: memory
refresh:
  interval_minutes: 5
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/test.db", cfg.DB.Path)
	require.Equal(t, 4, cfg.Crawler.Workers)
	require.Equal(t, "memory", cfg.Storage.Provider)
	require.Equal(t, 5, cfg.Refresh.IntervalMinutes)
	// Untouched keys keep their defaults.
	require.Equal(t, 3, cfg.HTTP.MaxAttempts)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.DB.Path = " " }},
		{"zero workers", func(c *Config) { c.Crawler.Workers = 0 }},
		{"zero attempts", func(c *Config) { c.HTTP.MaxAttempts = 0 }},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "s3" }},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = "gcs"; c.Storage.GCSBucket = "" }},
		{"local without dir", func(c *Config) { c.Storage.BaseDir = "" }},
		{"pubsub without topic", func(c *Config) { c.PubSub.Enabled = true; c.PubSub.ProjectID = "p" }},
		{"zero refresh interval", func(c *Config) { c.Refresh.IntervalMinutes = 0 }},
		{"zero stale window", func(c *Config) { c.Refresh.StaleAfterDays = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
