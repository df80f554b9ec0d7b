// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/curator/metadata-resolver/internal/video"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig       `mapstructure:"server"`
	Auth       AuthConfig         `mapstructure:"auth"`
	HTTP       HTTPConfig         `mapstructure:"http"`
	Identities IdentityConfig     `mapstructure:"identities"`
	Resolver   ResolverConfig     `mapstructure:"resolver"`
	Headless   HeadlessConfig     `mapstructure:"headless"`
	Cache      CacheConfig        `mapstructure:"cache"`
	Provider   ProviderConfig     `mapstructure:"provider"`
	Review     ReviewConfig       `mapstructure:"review"`
	PubSub     PubSubConfig       `mapstructure:"pubsub"`
	DB         DBConfig           `mapstructure:"db"`
	Logging    LoggingConfig      `mapstructure:"logging"`
	Videos     []video.ConfigItem `mapstructure:"videos"`
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

// HTTPConfig configures outbound page fetch behavior.
type HTTPConfig struct {
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"`
	BackoffBaseMs       int `mapstructure:"backoff_base_ms"`
	BackoffMaxMs        int `mapstructure:"backoff_max_ms"`
}

// IdentityConfig describes the rotating client identity pool. An empty pool
// uses the shipped defaults.
type IdentityConfig struct {
	UserAgents []string `mapstructure:"user_agents"`
}

// ResolverConfig carries the per-strategy acceptance thresholds.
type ResolverConfig struct {
	StructuredThreshold int `mapstructure:"structured_threshold"`
	URLPatternThreshold int `mapstructure:"url_pattern_threshold"`
	HeuristicThreshold  int `mapstructure:"heuristic_threshold"`
	BestAvailableFloor  int `mapstructure:"best_available_floor"`
}

// HeadlessConfig configures the rendered-fetch escalation.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// CacheConfig governs the two-tier video metadata cache.
type CacheConfig struct {
	TTLMinutes int    `mapstructure:"ttl_minutes"`
	FilePath   string `mapstructure:"file_path"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	GCSObject  string `mapstructure:"gcs_object"`
}

// ProviderConfig configures the video metadata provider API.
type ProviderConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Endpoint       string  `mapstructure:"endpoint"`
	BatchSize      int     `mapstructure:"batch_size"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RateLimit      float64 `mapstructure:"rate_limit"`
}

// ReviewConfig tunes escalation policy.
type ReviewConfig struct {
	VolumeThreshold     int `mapstructure:"volume_threshold"`
	HighBelow           int `mapstructure:"high_below"`
	LowAtOrAbove        int `mapstructure:"low_at_or_above"`
	DigestIntervalHours int `mapstructure:"digest_interval_hours"`
	QueueLimit          int `mapstructure:"queue_limit"`
}

// PubSubConfig holds metadata for alert delivery.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory review store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("METARESOLVER")
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
	v.SetDefault("http.fetch_timeout_seconds", 20)
	v.SetDefault("http.backoff_base_ms", 500)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("resolver.structured_threshold", 85)
	v.SetDefault("resolver.url_pattern_threshold", 75)
	v.SetDefault("resolver.heuristic_threshold", 60)
	v.SetDefault("resolver.best_available_floor", 30)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("cache.file_path", "data/video-metadata-cache.json")
	v.SetDefault("provider.batch_size", 50)
	v.SetDefault("provider.timeout_seconds", 8)
	v.SetDefault("provider.rate_limit", 2.0)
	v.SetDefault("review.volume_threshold", 5)
	v.SetDefault("review.high_below", 30)
	v.SetDefault("review.low_at_or_above", 60)
	v.SetDefault("review.digest_interval_hours", 24)
	v.SetDefault("review.queue_limit", 50)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("http.fetch_timeout_seconds must be > 0")
	}
	if err := validateThreshold("resolver.structured_threshold", c.Resolver.StructuredThreshold); err != nil {
		return err
	}
	if err := validateThreshold("resolver.url_pattern_threshold", c.Resolver.URLPatternThreshold); err != nil {
		return err
	}
	if err := validateThreshold("resolver.heuristic_threshold", c.Resolver.HeuristicThreshold); err != nil {
		return err
	}
	if c.Cache.TTLMinutes <= 0 {
		return fmt.Errorf("cache.ttl_minutes must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Review.HighBelow >= c.Review.LowAtOrAbove {
		return fmt.Errorf("review.high_below must be < review.low_at_or_above")
	}
	return nil
}

func validateThreshold(name string, value int) error {
	if value < 1 || value > 100 {
		return fmt.Errorf("%s must be within [1,100]", name)
	}
	return nil
}

// FetchTimeout converts the fetch timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.FetchTimeoutSeconds) * time.Second
}

// CacheTTL converts the cache TTL config into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}
