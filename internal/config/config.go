// Package config loads the service configuration from propsift.yaml and
// PROPSIFT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete service configuration
type Config struct {
	DB        DBConfig        `json:"db" mapstructure:"db"`
	Cache     CacheConfig     `json:"cache" mapstructure:"cache"`
	API       APIConfig       `json:"api" mapstructure:"api"`
	Reconcile ReconcileConfig `json:"reconcile" mapstructure:"reconcile"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// DBConfig contains the relational store configuration
type DBConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// CacheConfig contains cache backend and TTL configuration.
// An empty Dir selects the in-process fallback backend.
type CacheConfig struct {
	Dir        string        `json:"dir" mapstructure:"dir"`
	WidgetTTL  time.Duration `json:"widgetTtl" mapstructure:"widget_ttl"`
	LabelTTL   time.Duration `json:"labelTtl" mapstructure:"label_ttl"`
	VersionTTL time.Duration `json:"versionTtl" mapstructure:"version_ttl"`
}

// APIConfig contains HTTP server configuration
type APIConfig struct {
	Addr              string `json:"addr" mapstructure:"addr"`
	RateLimit         int    `json:"rateLimit" mapstructure:"rate_limit"`
	RateBurst         int    `json:"rateBurst" mapstructure:"rate_burst"`
	RetryAfterSeconds int    `json:"retryAfterSeconds" mapstructure:"retry_after_seconds"`
}

// ReconcileConfig contains counter reconciliation configuration
type ReconcileConfig struct {
	Interval  time.Duration `json:"interval" mapstructure:"interval"`
	BatchSize int           `json:"batchSize" mapstructure:"batch_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		DB: DBConfig{
			Path: "propsift.db",
		},
		Cache: CacheConfig{
			Dir:        "",
			WidgetTTL:  5 * time.Minute,
			LabelTTL:   time.Hour,
			VersionTTL: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Addr:              "127.0.0.1:8375",
			RateLimit:         50,
			RateBurst:         100,
			RetryAfterSeconds: 2,
		},
		Reconcile: ReconcileConfig{
			Interval:  15 * time.Minute,
			BatchSize: 200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from the given file (optional) plus environment
// overrides, starting from defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	def := Default()
	v.SetDefault("db.path", def.DB.Path)
	v.SetDefault("cache.dir", def.Cache.Dir)
	v.SetDefault("cache.widget_ttl", def.Cache.WidgetTTL)
	v.SetDefault("cache.label_ttl", def.Cache.LabelTTL)
	v.SetDefault("cache.version_ttl", def.Cache.VersionTTL)
	v.SetDefault("api.addr", def.API.Addr)
	v.SetDefault("api.rate_limit", def.API.RateLimit)
	v.SetDefault("api.rate_burst", def.API.RateBurst)
	v.SetDefault("api.retry_after_seconds", def.API.RetryAfterSeconds)
	v.SetDefault("reconcile.interval", def.Reconcile.Interval)
	v.SetDefault("reconcile.batch_size", def.Reconcile.BatchSize)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)

	v.SetEnvPrefix("PROPSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("propsift")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// Missing config file is fine; defaults and env apply.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	if c.Cache.WidgetTTL <= 0 {
		return fmt.Errorf("cache.widget_ttl must be positive")
	}
	if c.Cache.LabelTTL <= 0 {
		return fmt.Errorf("cache.label_ttl must be positive")
	}
	if c.Cache.VersionTTL <= 0 {
		return fmt.Errorf("cache.version_ttl must be positive")
	}
	if c.API.RateLimit < 0 || c.API.RateBurst < 0 {
		return fmt.Errorf("api rate limit values must not be negative")
	}
	if c.Reconcile.BatchSize <= 0 {
		return fmt.Errorf("reconcile.batch_size must be positive")
	}
	return nil
}
