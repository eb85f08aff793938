// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Health    HealthConfig    `mapstructure:"health"`
	Aggregate AggregateConfig `mapstructure:"aggregate"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MigrateOnStart  bool   `mapstructure:"migrate_on_start"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// RedisConfig points the shared cache at a Redis instance.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	DB      int    `mapstructure:"db"`
}

// CacheConfig tunes the upstream payload cache.
type CacheConfig struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

// SourcesConfig holds per-upstream endpoints and credentials.
type SourcesConfig struct {
	Smithery SmitheryConfig `mapstructure:"smithery"`
	PulseMCP PulseMCPConfig `mapstructure:"pulsemcp"`
}

// SmitheryConfig configures the Smithery registry client.
type SmitheryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	PageSize int    `mapstructure:"page_size"`
	MaxPages int    `mapstructure:"max_pages"`
}

// PulseMCPConfig configures the PulseMCP API client.
type PulseMCPConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	BaseURL      string `mapstructure:"base_url"`
	CountPerPage int    `mapstructure:"count_per_page"`
}

// CrawlerConfig governs sync pipeline and outbound request behavior.
type CrawlerConfig struct {
	Concurrency     int     `mapstructure:"concurrency"`
	UserAgent       string  `mapstructure:"user_agent"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	QueueDepth      int     `mapstructure:"queue_depth"`
	DomainRPS       float64 `mapstructure:"domain_rps"`
	DomainBurst     int     `mapstructure:"domain_burst"`
	RespectRobots   bool    `mapstructure:"respect_robots"`
	SyncIntervalMin int     `mapstructure:"sync_interval_minutes"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	MinHTMLBytes  int  `mapstructure:"min_html_bytes"`
}

// HealthConfig controls the health ping subsystem.
type HealthConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	IntervalMin    int `mapstructure:"interval_minutes"`
	StaleAfterMin  int `mapstructure:"stale_after_minutes"`
	BatchSize      int `mapstructure:"batch_size"`
	DegradedMs     int `mapstructure:"degraded_threshold_ms"`
}

// AggregateConfig controls health rollups and retention.
type AggregateConfig struct {
	IntervalMin   int `mapstructure:"interval_minutes"`
	WindowMin     int `mapstructure:"window_minutes"`
	RetentionDays int `mapstructure:"retention_days"`
}

// StorageConfig sets paths and content types for raw payload archiving.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for sync completion notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MCPINDEX")
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
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.migrate_on_start", true)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("sources.smithery.enabled", true)
	v.SetDefault("sources.smithery.base_url", "https://registry.smithery.ai")
	v.SetDefault("sources.smithery.page_size", 50)
	v.SetDefault("sources.smithery.max_pages", 20)
	v.SetDefault("sources.pulsemcp.enabled", true)
	v.SetDefault("sources.pulsemcp.base_url", "https://api.pulsemcp.com/v0beta")
	v.SetDefault("sources.pulsemcp.count_per_page", 100)
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.user_agent", "mcpindex-bot/0.1")
	v.SetDefault("crawler.timeout_seconds", 15)
	v.SetDefault("crawler.queue_depth", 16)
	v.SetDefault("crawler.domain_rps", 1)
	v.SetDefault("crawler.domain_burst", 2)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.sync_interval_minutes", 360)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.min_html_bytes", 2048)
	v.SetDefault("health.concurrency", 4)
	v.SetDefault("health.timeout_seconds", 10)
	v.SetDefault("health.interval_minutes", 30)
	v.SetDefault("health.stale_after_minutes", 60)
	v.SetDefault("health.batch_size", 200)
	v.SetDefault("health.degraded_threshold_ms", 2000)
	v.SetDefault("aggregate.interval_minutes", 60)
	v.SetDefault("aggregate.window_minutes", 60)
	v.SetDefault("aggregate.retention_days", 30)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "payloads")
	v.SetDefault("storage.content_type", "application/json")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Health.Concurrency <= 0 {
		return fmt.Errorf("health.concurrency must be > 0")
	}
	if c.Aggregate.RetentionDays <= 0 {
		return fmt.Errorf("aggregate.retention_days must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// FetchTimeout returns the outbound request timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// CacheTTL returns the upstream payload cache TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
