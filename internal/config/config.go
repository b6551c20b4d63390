// Package config loads and validates sitemap tracker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sitemap   SitemapConfig   `mapstructure:"sitemap"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Export    ExportConfig    `mapstructure:"export"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Mail      MailConfig      `mapstructure:"mail"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	SeedSites []SeedSite      `mapstructure:"seed_sites"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SitemapConfig governs sitemap retrieval.
type SitemapConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int     `mapstructure:"max_body_bytes"`
	MaxDepth       int     `mapstructure:"max_depth"`
	MaxSitemaps    int     `mapstructure:"max_sitemaps"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// ChainConfig tunes crawl chain storage.
type ChainConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

// StorageConfig selects the document repository.
type StorageConfig struct {
	Backend     string         `mapstructure:"backend"`
	AutoMigrate bool           `mapstructure:"auto_migrate"`
	Postgres    PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls the Postgres pool.
type PostgresConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// ExportConfig selects where URL set exports are written.
type ExportConfig struct {
	Backend     string `mapstructure:"backend"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds the crawl event topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MailConfig configures crawl result emails.
type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// SchedulerConfig governs scheduled crawls and the worker pool.
type SchedulerConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Concurrency         int    `mapstructure:"concurrency"`
	QueueDepth          int    `mapstructure:"queue_depth"`
	MaxAttempts         int    `mapstructure:"max_attempts"`
	RetryBackoffSeconds int    `mapstructure:"retry_backoff_seconds"`
	Timezone            string `mapstructure:"timezone"`
	Daily               string `mapstructure:"daily"`
	Weekly              string `mapstructure:"weekly"`
	Monthly             string `mapstructure:"monthly"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SeedSite is a site inserted at startup when absent.
type SeedSite struct {
	ID                string `mapstructure:"id"`
	Name              string `mapstructure:"name"`
	BaseURL           string `mapstructure:"base_url"`
	SitemapURL        string `mapstructure:"sitemap_url"`
	UserID            string `mapstructure:"user_id"`
	CrawlSchedule     string `mapstructure:"crawl_schedule"`
	NotificationEmail string `mapstructure:"notification_email"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRACKER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("sitemap.user_agent", "sitemap-tracker/0.1")
	v.SetDefault("sitemap.timeout_seconds", 30)
	v.SetDefault("sitemap.max_body_bytes", 50<<20)
	v.SetDefault("sitemap.max_depth", 5)
	v.SetDefault("sitemap.max_sitemaps", 1000)
	v.SetDefault("sitemap.rate_per_second", 2.0)
	v.SetDefault("sitemap.burst", 2)
	v.SetDefault("chain.chunk_size", 1000)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.auto_migrate", true)
	v.SetDefault("export.backend", "memory")
	v.SetDefault("export.prefix", "exports")
	v.SetDefault("export.content_type", "text/plain; charset=utf-8")
	v.SetDefault("mail.port", 587)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.queue_depth", 256)
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.retry_backoff_seconds", 5)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.daily", "0 0 * * *")
	v.SetDefault("scheduler.weekly", "0 0 * * 1")
	v.SetDefault("scheduler.monthly", "0 0 1 * *")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Sitemap.TimeoutSeconds <= 0 {
		return fmt.Errorf("sitemap.timeout_seconds must be > 0")
	}
	if c.Sitemap.MaxDepth <= 0 {
		return fmt.Errorf("sitemap.max_depth must be > 0")
	}
	if c.Sitemap.MaxSitemaps <= 0 {
		return fmt.Errorf("sitemap.max_sitemaps must be > 0")
	}
	if c.Chain.ChunkSize <= 0 {
		return fmt.Errorf("chain.chunk_size must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.validateBackends(); err != nil {
		return err
	}
	if c.Mail.Enabled && (c.Mail.Host == "" || c.Mail.From == "") {
		return fmt.Errorf("mail.host and mail.from must be set when mail is enabled")
	}
	if c.Scheduler.Enabled && c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be > 0 when the scheduler is enabled")
	}
	for i, seed := range c.SeedSites {
		if seed.ID == "" || seed.UserID == "" || seed.BaseURL == "" {
			return fmt.Errorf("seed_sites[%d]: id, user_id and base_url are required", i)
		}
		if _, err := tracker.ParseSchedule(seed.CrawlSchedule); err != nil {
			return fmt.Errorf("seed_sites[%d]: %w", i, err)
		}
	}
	return nil
}

func (c Config) validateBackends() error {
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory or postgres, got %q", c.Storage.Backend)
	}
	switch c.Export.Backend {
	case "memory":
	case "local":
		if c.Export.LocalDir == "" {
			return fmt.Errorf("export.local_dir is required for the local backend")
		}
	case "gcs":
		if c.Export.GCSBucket == "" {
			return fmt.Errorf("export.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("export.backend must be memory, local or gcs, got %q", c.Export.Backend)
	}
	return nil
}

// SitemapTimeout is the per-document request timeout.
func (c Config) SitemapTimeout() time.Duration {
	return time.Duration(c.Sitemap.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds a single API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// RetryBackoff is the base delay between crawl attempts.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.Scheduler.RetryBackoffSeconds) * time.Second
}

// MaxConnLifetime converts the pool lifetime to a duration.
func (p PostgresConfig) MaxConnLifetime() time.Duration {
	return time.Duration(p.MaxConnLifetimeSeconds) * time.Second
}
