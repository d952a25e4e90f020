// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	DB        DBConfig        `mapstructure:"db"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Ops       OpsConfig       `mapstructure:"ops"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DBConfig locates the SQLite database file.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// CrawlerConfig governs the crawl worker pool.
type CrawlerConfig struct {
	Workers            int  `mapstructure:"workers"`
	QueueDepth         int  `mapstructure:"queue_depth"`
	DefaultDepth       int  `mapstructure:"default_depth"`
	SameDomain         bool `mapstructure:"same_domain"`
	Stealth            bool `mapstructure:"stealth"`
	ProgressHistory    int  `mapstructure:"progress_history"`
	FaviconConcurrency int  `mapstructure:"favicon_concurrency"`
}

// HTTPConfig configures fetch timeout, 429 retry behavior, and the
// outbound request identity. Empty identity fields fall back to the
// built-in strings.
type HTTPConfig struct {
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxAttempts       int    `mapstructure:"max_attempts"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds"`
	UserAgent         string `mapstructure:"user_agent"`
	ReferrerSite      string `mapstructure:"referrer_site"`
}

// RateLimitConfig tunes the per-domain politeness limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StorageConfig selects the favicon blob store.
type StorageConfig struct {
	// Provider is one of "local", "memory", or "gcs".
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for completion-event publishing.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// OpsConfig controls the ops HTTP server (health and metrics).
type OpsConfig struct {
	Port int `mapstructure:"port"`
}

// RefreshConfig schedules the periodic stale-page refresh.
type RefreshConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
	// Command, when set, is run as a subprocess for each refresh cycle;
	// when empty the built-in re-crawl of stale URLs runs instead.
	Command        string `mapstructure:"command"`
	StaleAfterDays int    `mapstructure:"stale_after_days"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOVACRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.path", "novacrawler.db")
	v.SetDefault("crawler.workers", 10)
	v.SetDefault("crawler.queue_depth", 4096)
	v.SetDefault("crawler.default_depth", 2)
	v.SetDefault("crawler.same_domain", true)
	v.SetDefault("crawler.stealth", false)
	v.SetDefault("crawler.progress_history", 1000)
	v.SetDefault("crawler.favicon_concurrency", 100)
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.retry_delay_seconds", 5)
	v.SetDefault("ratelimit.requests_per_second", 2)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.base_dir", "favicons")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("ops.port", 8080)
	v.SetDefault("refresh.interval_minutes", 30)
	v.SetDefault("refresh.stale_after_days", 14)
	v.SetDefault("logging.development", true)
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DB.Path) == "" {
		return fmt.Errorf("db.path is required")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be positive")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be positive")
	}
	switch c.Storage.Provider {
	case "local":
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local provider")
		}
	case "memory":
	case "gcs":
		if strings.TrimSpace(c.Storage.GCSBucket) == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	if c.PubSub.Enabled {
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required when pubsub is enabled")
		}
	}
	if c.Refresh.IntervalMinutes <= 0 {
		return fmt.Errorf("refresh.interval_minutes must be positive")
	}
	if c.Refresh.StaleAfterDays <= 0 {
		return fmt.Errorf("refresh.stale_after_days must be positive")
	}
	return nil
}
