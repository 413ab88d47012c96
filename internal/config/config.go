// Package config provides YAML-based configuration loading for Parley.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Parley configuration, loaded from config.yaml.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	HTTP      HTTPConfig      `yaml:"http"`
	Idle      IdleConfig      `yaml:"idle"`
	Retention RetentionConfig `yaml:"retention"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// StorageConfig selects the snapshot store backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "sqlite" or "mysql"
	DSN     string `yaml:"dsn"`     // sqlite path or mysql DSN
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// IdleConfig holds the default idle countdown settings applied when a
// session has no persisted configuration of its own.
type IdleConfig struct {
	DurationSeconds         int  `yaml:"duration_seconds"`
	WarningThresholdSeconds int  `yaml:"warning_threshold_seconds"`
	Enabled                 bool `yaml:"enabled"`
}

// RetentionConfig schedules the snapshot retention sweep.
type RetentionConfig struct {
	Schedule  string `yaml:"schedule"` // 5-field cron expression
	MaxAgeDays int   `yaml:"max_age_days"`
}

// NotifyConfig holds optional session-end digest destinations.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig configures the Slack digest sender.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig configures the Discord digest sender.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.DSN == "" && c.Storage.Backend == "sqlite" {
		c.Storage.DSN = "parley.db"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Idle.DurationSeconds == 0 {
		c.Idle.DurationSeconds = 300
		c.Idle.Enabled = true
	}
	if c.Idle.WarningThresholdSeconds == 0 {
		c.Idle.WarningThresholdSeconds = 60
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "0 3 * * *"
	}
	if c.Retention.MaxAgeDays == 0 {
		c.Retention.MaxAgeDays = 30
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Storage.Backend != "sqlite" && c.Storage.Backend != "mysql" {
		errs = append(errs, fmt.Sprintf("storage.backend %q must be sqlite or mysql", c.Storage.Backend))
	}
	if c.Storage.Backend == "mysql" && c.Storage.DSN == "" {
		errs = append(errs, "storage.dsn is required for mysql")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port %d out of range", c.HTTP.Port))
	}
	if c.Retention.MaxAgeDays < 0 {
		errs = append(errs, "retention.max_age_days must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
