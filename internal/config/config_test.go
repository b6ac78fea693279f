package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	content := `
tracker:
  item: "Twisted bow"

runewiki:
  timeout: 10s

scheduler:
  interval: 6h
  jitter: 0.1

storage:
  db_path: "./data/test.db"
  retention: 240h

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Tracker.Item != "Twisted bow" {
		t.Errorf("Unexpected item: %q", cfg.Tracker.Item)
	}
	if cfg.Tracker.Unit != "gp" {
		t.Errorf("Unexpected default unit: %q", cfg.Tracker.Unit)
	}
	if cfg.RuneWiki.Timeout != 10*time.Second {
		t.Errorf("Unexpected timeout: %v", cfg.RuneWiki.Timeout)
	}
	if cfg.RuneWiki.BaseURL != "https://prices.runescape.wiki/api/v1/osrs" {
		t.Errorf("Unexpected default base URL: %q", cfg.RuneWiki.BaseURL)
	}
	if cfg.Scheduler.Interval != 6*time.Hour {
		t.Errorf("Unexpected interval: %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Jitter != 0.1 {
		t.Errorf("Unexpected jitter: %f", cfg.Scheduler.Jitter)
	}
	if !cfg.Scheduler.Backfill || cfg.Scheduler.BackfillTimestep != "6h" {
		t.Errorf("Unexpected backfill defaults: %v %q", cfg.Scheduler.Backfill, cfg.Scheduler.BackfillTimestep)
	}
	if cfg.Storage.Retention != 240*time.Hour {
		t.Errorf("Unexpected retention: %v", cfg.Storage.Retention)
	}
	if cfg.Storage.ChartWindow != 7*24*time.Hour {
		t.Errorf("Unexpected default chart window: %v", cfg.Storage.ChartWindow)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RUNESYNC_TRACKER_ITEM", "Abyssal whip")
	t.Setenv("RUNESYNC_TELEGRAM_BOT_TOKEN", "from-env")

	cfg, err := Load(writeConfig(t, "tracker:\n  item: \"Twisted bow\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tracker.Item != "Abyssal whip" {
		t.Errorf("env override not applied to tracker.item: %q", cfg.Tracker.Item)
	}
	if cfg.Telegram.BotToken != "from-env" {
		t.Errorf("env override not applied to telegram.bot_token: %q", cfg.Telegram.BotToken)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func validConfig() *Config {
	return &Config{
		Tracker: TrackerConfig{Item: "Twisted bow", Unit: "gp"},
		RuneWiki: RuneWikiConfig{
			BaseURL:   "https://prices.runescape.wiki/api/v1/osrs",
			UserAgent: "RuneSync Price Tracker",
			Timeout:   30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Interval:         6 * time.Hour,
			Jitter:           0.05,
			Backfill:         true,
			BackfillTimestep: "6h",
		},
		Storage: StorageConfig{
			DBPath:      "./data/runesync.db",
			Retention:   14 * 24 * time.Hour,
			ChartWindow: 7 * 24 * time.Hour,
		},
		Server:  ServerConfig{Enabled: true, Addr: ":8080", Mode: "release"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing item", func(c *Config) { c.Tracker.Item = "  " }, true},
		{"missing base url", func(c *Config) { c.RuneWiki.BaseURL = "" }, true},
		{"zero timeout", func(c *Config) { c.RuneWiki.Timeout = 0 }, true},
		{"interval too short", func(c *Config) { c.Scheduler.Interval = 30 * time.Second }, true},
		{"jitter too large", func(c *Config) { c.Scheduler.Jitter = 0.9 }, true},
		{"bad backfill timestep", func(c *Config) { c.Scheduler.BackfillTimestep = "2h" }, true},
		{"bad timestep ignored without backfill", func(c *Config) {
			c.Scheduler.Backfill = false
			c.Scheduler.BackfillTimestep = "2h"
		}, false},
		{"retention shorter than chart", func(c *Config) { c.Storage.Retention = 7 * 24 * time.Hour }, true},
		{"retention shorter than a week", func(c *Config) {
			c.Storage.ChartWindow = 24 * time.Hour
			c.Storage.Retention = 72 * time.Hour
		}, true},
		{"retention without jitter margin", func(c *Config) { c.Storage.Retention = 7*24*time.Hour + 6*time.Hour }, true},
		{"chart window too short", func(c *Config) { c.Storage.ChartWindow = time.Hour }, true},
		{"missing telegram token when enabled", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.ChatID = "1"
		}, true},
		{"bad server mode", func(c *Config) { c.Server.Mode = "prod" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
