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
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Judge     JudgeConfig     `mapstructure:"judge"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MinOpenConns int    `mapstructure:"min_open_conns"`
}

// RedisConfig controls the content cache. An empty address disables the
// cache; the pipeline then runs in always-miss mode.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CrawlerConfig governs dispatcher and fetch pipeline behavior.
type CrawlerConfig struct {
	Concurrency        int    `mapstructure:"concurrency"`
	QueueDepth         int    `mapstructure:"queue_depth"`
	UserAgent          string `mapstructure:"user_agent"`
	HTTPTimeoutSec     int    `mapstructure:"http_timeout_seconds"`
	HTMLCacheTTLSec    int    `mapstructure:"html_cache_ttl_seconds"`
	ScheduleEverySec   int    `mapstructure:"schedule_every_seconds"`
	JobMaxAttempts     int    `mapstructure:"job_max_attempts"`
	JobBackoffStartSec int    `mapstructure:"job_backoff_start_seconds"`
}

// HeadlessConfig configures the chromedp fallback renderer.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs int  `mapstructure:"settle_delay_ms"`
}

// ExtractConfig bounds selector extraction output.
type ExtractConfig struct {
	ContentMaxChars int  `mapstructure:"content_max_chars"`
	SummaryMaxChars int  `mapstructure:"summary_max_chars"`
	AIFallback      bool `mapstructure:"ai_fallback"`
}

// FeedConfig governs conditional feed fetching.
type FeedConfig struct {
	TimeoutSec      int `mapstructure:"timeout_seconds"`
	PartialMinChars int `mapstructure:"partial_min_chars"`
}

// DedupConfig tunes the layered duplicate detection.
type DedupConfig struct {
	LookbackDays       int     `mapstructure:"lookback_days"`
	CandidateCap       int     `mapstructure:"candidate_cap"`
	PrefilterThreshold float64 `mapstructure:"prefilter_threshold"`
	DuplicateThreshold float64 `mapstructure:"duplicate_threshold"`
	EarlyStopScore     float64 `mapstructure:"early_stop_score"`
	JudgeDelayMs       int     `mapstructure:"judge_delay_ms"`
	JudgeCacheTTLHours int     `mapstructure:"judge_cache_ttl_hours"`
	MaxJudgeErrors     int     `mapstructure:"max_judge_errors"`
}

// WatchConfig tunes the relevance engine.
type WatchConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	SweepBatchSize      int     `mapstructure:"sweep_batch_size"`
	SweepLookbackMin    int     `mapstructure:"sweep_lookback_minutes"`
}

// JudgeConfig configures the semantic judge client. An empty API key leaves
// the pipeline in hash/lexical-only mode.
type JudgeConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	TimeoutSec int    `mapstructure:"timeout_seconds"`
}

// RetentionConfig sets housekeeping purge windows.
type RetentionConfig struct {
	ArticleDays int `mapstructure:"article_days"`
	JobDays     int `mapstructure:"job_days"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSWATCH")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("db.min_open_conns", 2)
	v.SetDefault("crawler.concurrency", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("crawler.http_timeout_seconds", 15)
	v.SetDefault("crawler.html_cache_ttl_seconds", 300)
	v.SetDefault("crawler.schedule_every_seconds", 300)
	v.SetDefault("crawler.job_max_attempts", 3)
	v.SetDefault("crawler.job_backoff_start_seconds", 5)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.settle_delay_ms", 1500)
	v.SetDefault("extract.content_max_chars", 5000)
	v.SetDefault("extract.summary_max_chars", 500)
	v.SetDefault("extract.ai_fallback", false)
	v.SetDefault("feed.timeout_seconds", 30)
	v.SetDefault("feed.partial_min_chars", 200)
	v.SetDefault("dedup.lookback_days", 7)
	v.SetDefault("dedup.candidate_cap", 500)
	v.SetDefault("dedup.prefilter_threshold", 0.15)
	v.SetDefault("dedup.duplicate_threshold", 0.8)
	v.SetDefault("dedup.early_stop_score", 0.9)
	v.SetDefault("dedup.judge_delay_ms", 1000)
	v.SetDefault("dedup.judge_cache_ttl_hours", 24)
	v.SetDefault("dedup.max_judge_errors", 5)
	v.SetDefault("watch.confidence_threshold", 0.7)
	v.SetDefault("watch.sweep_batch_size", 50)
	v.SetDefault("watch.sweep_lookback_minutes", 60)
	v.SetDefault("judge.model", "claude-sonnet-4-20250514")
	v.SetDefault("judge.timeout_seconds", 30)
	v.SetDefault("retention.article_days", 30)
	v.SetDefault("retention.job_days", 7)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.HTTPTimeoutSec <= 0 {
		return fmt.Errorf("crawler.http_timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.NavTimeoutSec <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0 when headless is enabled")
	}
	if c.Dedup.PrefilterThreshold < 0 || c.Dedup.PrefilterThreshold > 1 {
		return fmt.Errorf("dedup.prefilter_threshold must be within [0, 1]")
	}
	if c.Dedup.DuplicateThreshold <= 0 || c.Dedup.DuplicateThreshold > 1 {
		return fmt.Errorf("dedup.duplicate_threshold must be within (0, 1]")
	}
	if c.Watch.ConfidenceThreshold <= 0 || c.Watch.ConfidenceThreshold > 1 {
		return fmt.Errorf("watch.confidence_threshold must be within (0, 1]")
	}
	return nil
}

// HTTPTimeout exposes the lightweight fetch timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Crawler.HTTPTimeoutSec) * time.Second
}

// HTMLCacheTTL exposes the raw HTML cache TTL as a duration.
func (c Config) HTMLCacheTTL() time.Duration {
	return time.Duration(c.Crawler.HTMLCacheTTLSec) * time.Second
}
