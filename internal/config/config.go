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
	Server  ServerConfig   `mapstructure:"server"`
	DB      DBConfig       `mapstructure:"db"`
	Ingest  IngestConfig   `mapstructure:"ingest"`
	Sources []SourceConfig `mapstructure:"sources"`
	Logging LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// IngestConfig governs the scheduled crawl runs.
type IngestConfig struct {
	IntervalMinutes int  `mapstructure:"interval_minutes"`
	TimeoutSeconds  int  `mapstructure:"timeout_seconds"`
	RunOnStart      bool `mapstructure:"run_on_start"`
}

// SourceConfig describes one crawled event source.
type SourceConfig struct {
	Name           string `mapstructure:"name"`
	URL            string `mapstructure:"url"`
	Months         int    `mapstructure:"months"`
	StrictItems    bool   `mapstructure:"strict_items"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WHATSON")
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
	v.SetDefault("server.request_timeout_seconds", 30)
	// Registered so WHATSON_DB_DSN binds even without a config file.
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("ingest.interval_minutes", 360)
	v.SetDefault("ingest.timeout_seconds", 300)
	v.SetDefault("ingest.run_on_start", false)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Ingest.IntervalMinutes <= 0 {
		return fmt.Errorf("ingest.interval_minutes must be > 0")
	}
	if c.Ingest.TimeoutSeconds <= 0 {
		return fmt.Errorf("ingest.timeout_seconds must be > 0")
	}
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if src.URL == "" {
			return fmt.Errorf("sources[%d].url is required", i)
		}
	}
	return nil
}

// CrawlInterval returns the scheduled run interval as a duration.
func (c Config) CrawlInterval() time.Duration {
	return time.Duration(c.Ingest.IntervalMinutes) * time.Minute
}

// IngestTimeout bounds a single scheduled run.
func (c Config) IngestTimeout() time.Duration {
	return time.Duration(c.Ingest.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds one HTTP request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
