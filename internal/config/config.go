package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	RuneWiki  RuneWikiConfig  `mapstructure:"runewiki"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// TrackerConfig identifies the single tracked item
type TrackerConfig struct {
	Item string `mapstructure:"item"`
	Unit string `mapstructure:"unit"`
}

// RuneWikiConfig holds RuneScape Wiki prices API configuration
type RuneWikiConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	ItemsFile string        `mapstructure:"items_file"` // optional "id: name" catalog; empty = /mapping endpoint
}

// SchedulerConfig holds refresh cycle configuration
type SchedulerConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	Jitter           float64       `mapstructure:"jitter"` // fraction of interval added at random
	Backfill         bool          `mapstructure:"backfill"`
	BackfillTimestep string        `mapstructure:"backfill_timestep"`
}

// StorageConfig holds history persistence configuration
type StorageConfig struct {
	DBPath      string        `mapstructure:"db_path"`
	Retention   time.Duration `mapstructure:"retention"`
	ChartWindow time.Duration `mapstructure:"chart_window"`
}

// ServerConfig holds the HTTP snapshot endpoint configuration
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Mode    string `mapstructure:"mode"`
}

// TelegramConfig holds Telegram reporting configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// RUNESYNC_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("RUNESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// keys without a real default still need registering for env overrides
	v.SetDefault("tracker.item", "")
	v.SetDefault("tracker.unit", "gp")

	v.SetDefault("runewiki.base_url", "https://prices.runescape.wiki/api/v1/osrs")
	v.SetDefault("runewiki.user_agent", "RuneSync Price Tracker")
	v.SetDefault("runewiki.timeout", "30s")
	v.SetDefault("runewiki.items_file", "")

	v.SetDefault("scheduler.interval", "6h")
	v.SetDefault("scheduler.jitter", 0.05)
	v.SetDefault("scheduler.backfill", true)
	v.SetDefault("scheduler.backfill_timestep", "6h")

	v.SetDefault("storage.db_path", "./data/runesync.db")
	v.SetDefault("storage.retention", "336h") // 14 days
	v.SetDefault("storage.chart_window", "168h")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Tracker.Item) == "" {
		return fmt.Errorf("tracker.item is required")
	}

	if c.RuneWiki.BaseURL == "" {
		return fmt.Errorf("runewiki.base_url is required")
	}
	if c.RuneWiki.UserAgent == "" {
		return fmt.Errorf("runewiki.user_agent is required")
	}
	if c.RuneWiki.Timeout <= 0 {
		return fmt.Errorf("runewiki.timeout must be positive")
	}

	if c.Scheduler.Interval < 1*time.Minute {
		return fmt.Errorf("scheduler.interval must be at least 1 minute")
	}
	if c.Scheduler.Jitter < 0 || c.Scheduler.Jitter > 0.5 {
		return fmt.Errorf("scheduler.jitter must be between 0.0 and 0.5")
	}
	validTimesteps := map[string]bool{"5m": true, "1h": true, "6h": true, "24h": true}
	if c.Scheduler.Backfill && !validTimesteps[c.Scheduler.BackfillTimestep] {
		return fmt.Errorf("scheduler.backfill_timestep must be one of: 5m, 1h, 6h, 24h")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.ChartWindow < 24*time.Hour {
		return fmt.Errorf("storage.chart_window must be at least 24h")
	}
	// the weekly reference sample sits up to one jittered interval before
	// the longer of the chart window and one week
	maxGap := time.Duration(float64(c.Scheduler.Interval) * (1 + c.Scheduler.Jitter))
	if c.Storage.Retention < max(c.Storage.ChartWindow, 7*24*time.Hour)+maxGap {
		return fmt.Errorf("storage.retention must cover max(chart_window, 168h) plus one jittered scheduler.interval")
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when server is enabled")
	}
	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if c.Server.Enabled && !validModes[c.Server.Mode] {
		return fmt.Errorf("server.mode must be one of: debug, release, test")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
