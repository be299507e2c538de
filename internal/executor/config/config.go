package config

import (
	"time"

	"golang-trend-publisher/pkg/config"
)

// Executor holds executor-specific configuration.
type Executor struct {
	RunTimeout                         time.Duration `mapstructure:"run_timeout"`
	RedisStreamWorkflowTimeout         time.Duration `mapstructure:"redis_stream_workflow_timeout"`
	RedisStreamWorkflowBlock           time.Duration `mapstructure:"redis_stream_workflow_block"`
	RedisStreamWorkflowIdleBackoff     time.Duration `mapstructure:"redis_stream_workflow_idle_backoff"`
	RedisStreamWorkflowRetryInterval   time.Duration `mapstructure:"redis_stream_workflow_retry_interval"`
	RedisStreamWorkflowMaxIdleDuration time.Duration `mapstructure:"redis_stream_workflow_max_idle_duration"`
	RedisStreamWorkflowMaxRetry        int           `mapstructure:"redis_stream_workflow_max_retry"`
	NotifyTelegram                     bool          `mapstructure:"notify_telegram"`
}

// Scraper holds source fetching configuration.
type Scraper struct {
	SourcesFile           string        `mapstructure:"sources_file"`
	MaxItems              int           `mapstructure:"max_items"`
	MaxConcurrent         int           `mapstructure:"max_concurrent"`
	FetchTimeout          time.Duration `mapstructure:"fetch_timeout"`
	UserAgent             string        `mapstructure:"user_agent"`
	HostRequestsPerMinute int           `mapstructure:"host_requests_per_minute"`
	MaxBodyChars          int           `mapstructure:"max_body_chars"`
	HashPrefixChars       int           `mapstructure:"hash_prefix_chars"`
	MaxResponseBytes      int64         `mapstructure:"max_response_bytes"`
}

// Trend holds clustering and scoring configuration.
type Trend struct {
	ClusteringThreshold float64 `mapstructure:"clustering_threshold"`
	Hours               int     `mapstructure:"hours"`
	MaxItems            int     `mapstructure:"max_items"`
	MinClusterSize      int     `mapstructure:"min_cluster_size"`
	HalfLifeHours       float64 `mapstructure:"half_life_hours"`
}

// Market holds configuration for the instrument trend branch.
type Market struct {
	Enabled     bool `mapstructure:"enabled"`
	MinMentions int  `mapstructure:"min_mentions"`
}

// Embedding holds the configuration for the embedding provider.
type Embedding struct {
	Provider            string        `mapstructure:"provider"`
	APIKey              string        `mapstructure:"api_key"`
	Model               string        `mapstructure:"model"`
	BatchSize           int           `mapstructure:"batch_size"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxTextChars        int           `mapstructure:"max_text_chars"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
}

// Generator holds the configuration for article generation.
type Generator struct {
	Provider            string        `mapstructure:"provider"`
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"base_url"`
	Model               string        `mapstructure:"model"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxConcurrent       int           `mapstructure:"max_concurrent"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
	MaxTopics           int           `mapstructure:"max_topics"`
	MinTrendScore       float64       `mapstructure:"min_trend_score"`
	MinSources          int           `mapstructure:"min_sources"`
	MinClaimChars       int           `mapstructure:"min_claim_chars"`
	MaxContextItems     int           `mapstructure:"max_context_items"`
	Publish             bool          `mapstructure:"publish"`
}

// Telegram holds configuration for the Telegram notifier.
type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Config holds the full configuration for the executor service.
type Config struct {
	App       config.App      `mapstructure:"app"`
	Logger    config.Logger   `mapstructure:"logger"`
	Database  config.Database `mapstructure:"database"`
	Redis     config.Redis    `mapstructure:"redis"`
	Tracing   config.Tracing  `mapstructure:"tracing"`
	Executor  Executor        `mapstructure:"executor"`
	Scraper   Scraper         `mapstructure:"scraper"`
	Trend     Trend           `mapstructure:"trend"`
	Market    Market          `mapstructure:"market"`
	Embedding Embedding       `mapstructure:"embedding"`
	Generator Generator       `mapstructure:"generator"`
	Telegram  Telegram        `mapstructure:"telegram"`
}

// Load loads the executor configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset tunable with its default.
func (c *Config) ApplyDefaults() {
	if c.Executor.RunTimeout <= 0 {
		c.Executor.RunTimeout = 300 * time.Second
	}
	if c.Executor.RedisStreamWorkflowTimeout <= 0 {
		c.Executor.RedisStreamWorkflowTimeout = c.Executor.RunTimeout + 30*time.Second
	}
	if c.Executor.RedisStreamWorkflowBlock <= 0 {
		c.Executor.RedisStreamWorkflowBlock = 5 * time.Second
	}
	if c.Executor.RedisStreamWorkflowIdleBackoff <= 0 {
		c.Executor.RedisStreamWorkflowIdleBackoff = time.Second
	}
	if c.Executor.RedisStreamWorkflowRetryInterval <= 0 {
		c.Executor.RedisStreamWorkflowRetryInterval = time.Minute
	}
	if c.Executor.RedisStreamWorkflowMaxIdleDuration <= 0 {
		c.Executor.RedisStreamWorkflowMaxIdleDuration = 2 * c.Executor.RedisStreamWorkflowTimeout
	}
	if c.Executor.RedisStreamWorkflowMaxRetry <= 0 {
		c.Executor.RedisStreamWorkflowMaxRetry = 3
	}

	if c.Scraper.SourcesFile == "" {
		c.Scraper.SourcesFile = "configs/sources.yaml"
	}
	if c.Scraper.MaxItems <= 0 {
		c.Scraper.MaxItems = 200
	}
	if c.Scraper.MaxConcurrent <= 0 {
		c.Scraper.MaxConcurrent = 4
	}
	if c.Scraper.FetchTimeout <= 0 {
		c.Scraper.FetchTimeout = 20 * time.Second
	}
	if c.Scraper.UserAgent == "" {
		c.Scraper.UserAgent = "Mozilla/5.0 (compatible; trend-publisher/1.0)"
	}
	if c.Scraper.HostRequestsPerMinute <= 0 {
		c.Scraper.HostRequestsPerMinute = 30
	}
	if c.Scraper.MaxBodyChars <= 0 {
		c.Scraper.MaxBodyChars = 20000
	}
	if c.Scraper.HashPrefixChars <= 0 {
		c.Scraper.HashPrefixChars = 1000
	}
	if c.Scraper.MaxResponseBytes <= 0 {
		c.Scraper.MaxResponseBytes = 5 << 20
	}

	if c.Trend.ClusteringThreshold <= 0 || c.Trend.ClusteringThreshold > 1 {
		c.Trend.ClusteringThreshold = 0.78
	}
	if c.Trend.Hours <= 0 {
		c.Trend.Hours = 24
	}
	if c.Trend.MaxItems <= 0 {
		c.Trend.MaxItems = 500
	}
	if c.Trend.MinClusterSize <= 0 {
		c.Trend.MinClusterSize = 2
	}
	if c.Trend.HalfLifeHours <= 0 {
		c.Trend.HalfLifeHours = 12
	}

	if c.Market.MinMentions <= 0 {
		c.Market.MinMentions = 2
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "gemini"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-004"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = 30 * time.Second
	}
	if c.Embedding.MaxTextChars <= 0 {
		c.Embedding.MaxTextChars = 2000
	}

	if c.Generator.Provider == "" {
		c.Generator.Provider = "gemini"
	}
	if c.Generator.Model == "" && c.Generator.Provider == "gemini" {
		c.Generator.Model = "gemini-2.0-flash"
	}
	if c.Generator.Timeout <= 0 {
		c.Generator.Timeout = 90 * time.Second
	}
	if c.Generator.MaxConcurrent <= 0 {
		c.Generator.MaxConcurrent = 2
	}
	if c.Generator.MaxTopics <= 0 {
		c.Generator.MaxTopics = 5
	}
	if c.Generator.MinSources <= 0 {
		c.Generator.MinSources = 2
	}
	if c.Generator.MinClaimChars <= 0 {
		c.Generator.MinClaimChars = 200
	}
	if c.Generator.MaxContextItems <= 0 {
		c.Generator.MaxContextItems = 8
	}
}
