// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Bronze    BronzeConfig    `mapstructure:"bronze"`
	Silver    SilverConfig    `mapstructure:"silver"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SourceConfig governs the upstream search/detail API client.
type SourceConfig struct {
	SearchURL     string `mapstructure:"search_url"`
	DetailURL     string `mapstructure:"detail_url"`
	Referer       string `mapstructure:"referer"`
	UserAgent     string `mapstructure:"user_agent"`
	PageSize      int    `mapstructure:"pagesize"`
	MaxPages      int    `mapstructure:"max_pages"`
	TimeoutSec    int    `mapstructure:"timeout_seconds"`
	DetailDelayMs [2]int `mapstructure:"detail_delay_ms"`
	PageDelayMs   [2]int `mapstructure:"page_delay_ms"`
}

// BronzeConfig controls access to the raw-capture document store.
type BronzeConfig struct {
	URI             string `mapstructure:"uri"`
	Database        string `mapstructure:"database"`
	Collection      string `mapstructure:"collection"`
	QueryTimeoutSec int    `mapstructure:"query_timeout_seconds"`
}

// SilverConfig controls access to the curated relational store.
type SilverConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PipelineConfig governs orchestrator batching behavior.
type PipelineConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// DashboardConfig controls the read-only HTTP API.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// DedupConfig controls the recently-seen job id cache.
type DedupConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	RedisURL string `mapstructure:"redis_url"`
	TTLHours int    `mapstructure:"ttl_hours"`
}

// ScheduleConfig drives periodic harvest runs.
type ScheduleConfig struct {
	Spec     string   `mapstructure:"spec"`
	Keywords []string `mapstructure:"keywords"`
	Area     string   `mapstructure:"area"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBPIPE")
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
	v.SetDefault("source.search_url", "https://www.104.com.tw/jobs/search/api/jobs")
	v.SetDefault("source.detail_url", "https://www.104.com.tw/job/ajax/content")
	v.SetDefault("source.referer", "https://www.104.com.tw/jobs/search/")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36")
	v.SetDefault("source.pagesize", 30)
	v.SetDefault("source.max_pages", 30)
	v.SetDefault("source.timeout_seconds", 15)
	v.SetDefault("source.detail_delay_ms", [2]int{1500, 4000})
	v.SetDefault("source.page_delay_ms", [2]int{1000, 3000})
	v.SetDefault("bronze.database", "one_zero_four")
	v.SetDefault("bronze.collection", "bronze")
	v.SetDefault("bronze.query_timeout_seconds", 10)
	v.SetDefault("silver.max_conns", 4)
	v.SetDefault("silver.min_conns", 1)
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("dedup.enabled", false)
	v.SetDefault("dedup.ttl_hours", 24)
	v.SetDefault("schedule.spec", "@every 6h")
	v.SetDefault("schedule.area", "台北市")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Configuration
// errors are fatal at startup, never retried.
func (c Config) Validate() error {
	if c.Source.PageSize <= 0 || c.Source.PageSize > 30 {
		return fmt.Errorf("source.pagesize must be in 1..30 (the upstream API rejects larger values)")
	}
	if c.Source.MaxPages <= 0 {
		return fmt.Errorf("source.max_pages must be > 0")
	}
	if c.Source.TimeoutSec <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be > 0")
	}
	if c.Dashboard.Port <= 0 {
		return fmt.Errorf("dashboard.port must be > 0")
	}
	if c.Dedup.Enabled && c.Dedup.RedisURL == "" {
		return fmt.Errorf("dedup.redis_url must be set when dedup is enabled")
	}
	return nil
}

// SourceTimeout converts the source timeout config into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSec) * time.Second
}

// BronzeQueryTimeout converts the bronze query timeout config into a duration.
func (c Config) BronzeQueryTimeout() time.Duration {
	return time.Duration(c.Bronze.QueryTimeoutSec) * time.Second
}
