package config

import (
	"time"

	"golang-trend-publisher/pkg/config"
)

// Scheduler holds scheduler-specific configuration.
type Scheduler struct {
	Enabled        bool          `mapstructure:"enabled"`
	Cron           string        `mapstructure:"cron"`
	RunOnStart     bool          `mapstructure:"run_on_start"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	// Bounds applied to run overrides submitted over HTTP.
	MaxHours    int `mapstructure:"max_hours"`
	MaxMaxItems int `mapstructure:"max_max_items"`
	PageLimit   int `mapstructure:"page_limit"`
}

// Config holds the full configuration for the scheduler service.
type Config struct {
	App       config.App      `mapstructure:"app"`
	Logger    config.Logger   `mapstructure:"logger"`
	Database  config.Database `mapstructure:"database"`
	Redis     config.Redis    `mapstructure:"redis"`
	API       config.API      `mapstructure:"api"`
	Tracing   config.Tracing  `mapstructure:"tracing"`
	Scheduler Scheduler       `mapstructure:"scheduler"`
}

// Load loads the scheduler configuration from the given path.
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
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "0 * * * *"
	}
	if c.Scheduler.PublishTimeout <= 0 {
		c.Scheduler.PublishTimeout = 10 * time.Second
	}
	if c.Scheduler.MaxHours <= 0 {
		c.Scheduler.MaxHours = 24 * 7
	}
	if c.Scheduler.MaxMaxItems <= 0 {
		c.Scheduler.MaxMaxItems = 5000
	}
	if c.Scheduler.PageLimit <= 0 {
		c.Scheduler.PageLimit = 20
	}
	if c.Redis.StreamMaxLen <= 0 {
		c.Redis.StreamMaxLen = 1000
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}
