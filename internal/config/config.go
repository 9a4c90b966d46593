// Package config loads and validates the daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// Storage backends.
const (
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
)

// Config represents the daemon configuration.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	API           APIConfig           `yaml:"api"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Retention     RetentionConfig     `yaml:"retention"`
	Integrity     IntegrityConfig     `yaml:"integrity"`
	Anomaly       AnomalyConfig       `yaml:"anomaly"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Notifications NotificationsConfig `yaml:"notifications"`

	Verbose bool `yaml:"-"` // set via CLI flag
}

// StorageConfig selects and configures the activity store backend.
type StorageConfig struct {
	// Backend is sqlite or clickhouse. SQLite serves everything;
	// ClickHouse holds activity records only, with alerts and policy
	// runs staying in SQLite.
	Backend    string           `yaml:"backend"`
	SQLitePath string           `yaml:"sqlite_path"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig contains ClickHouse connection settings.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// APIConfig contains HTTP API settings.
type APIConfig struct {
	Address string `yaml:"address"` // HTTP listen address (default: :8080)
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // metrics listen address (default: :9090)
}

// RetentionConfig contains retention engine settings.
type RetentionConfig struct {
	ArchiveDir string                    `yaml:"archive_dir"`
	Policies   []*models.RetentionPolicy `yaml:"policies"`
}

// IntegrityConfig contains integrity audit cadence settings.
type IntegrityConfig struct {
	Interval time.Duration `yaml:"interval"` // default: 6h
}

// AnomalyConfig contains anomaly sweep settings.
type AnomalyConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"` // default: 1h
	LookbackHours int           `yaml:"lookback_hours"` // default: 24
}

// AlertsConfig contains alert manager settings.
type AlertsConfig struct {
	RulesFile          string        `yaml:"rules_file"`
	AggregationWindow  time.Duration `yaml:"aggregation_window"`    // default: 15m
	MaxAlertsPerWindow int           `yaml:"max_alerts_per_window"` // default: 3
	Channels           []string      `yaml:"channels"`
}

// NotificationsConfig configures the notification channels. A nil
// channel section leaves that channel unregistered.
type NotificationsConfig struct {
	InAppCapacity int             `yaml:"in_app_capacity"` // default: 100
	Email         *EmailConfig    `yaml:"email"`
	Webhook       *WebhookConfig  `yaml:"webhook"`
	SMS           *SMSConfig      `yaml:"sms"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

// EmailConfig contains SMTP settings.
type EmailConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// WebhookConfig contains webhook settings.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// SMSConfig contains SMS gateway settings.
type SMSConfig struct {
	GatewayURL string   `yaml:"gateway_url"`
	APIKey     string   `yaml:"api_key"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// RateLimitConfig contains notification rate limit settings.
type RateLimitConfig struct {
	MaxPerWindow int           `yaml:"max_per_window"` // default: 10
	Window       time.Duration `yaml:"window"`         // default: 1m
	Disabled     bool          `yaml:"disabled"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendSQLite
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "aitrail.db"
	}
	if c.Storage.ClickHouse.Database == "" {
		c.Storage.ClickHouse.Database = "aitrail"
	}
	if c.API.Address == "" {
		c.API.Address = ":8080"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Retention.ArchiveDir == "" {
		c.Retention.ArchiveDir = "archives"
	}
	if c.Integrity.Interval <= 0 {
		c.Integrity.Interval = 6 * time.Hour
	}
	if c.Anomaly.SweepInterval <= 0 {
		c.Anomaly.SweepInterval = time.Hour
	}
	if c.Anomaly.LookbackHours <= 0 {
		c.Anomaly.LookbackHours = 24
	}
	if c.Alerts.AggregationWindow <= 0 {
		c.Alerts.AggregationWindow = 15 * time.Minute
	}
	if c.Alerts.MaxAlertsPerWindow <= 0 {
		c.Alerts.MaxAlertsPerWindow = 3
	}
	if len(c.Alerts.Channels) == 0 {
		c.Alerts.Channels = []string{"in_app"}
	}
	if c.Notifications.InAppCapacity <= 0 {
		c.Notifications.InAppCapacity = 100
	}
	if c.Notifications.RateLimit.MaxPerWindow <= 0 {
		c.Notifications.RateLimit.MaxPerWindow = 10
	}
	if c.Notifications.RateLimit.Window <= 0 {
		c.Notifications.RateLimit.Window = time.Minute
	}

	for _, policy := range c.Retention.Policies {
		if policy.Schedule == "" {
			policy.Schedule = models.ScheduleDaily
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required")
		}
	case BackendClickHouse:
		if c.Storage.ClickHouse.Addr == "" {
			return fmt.Errorf("storage.clickhouse.addr is required")
		}
		// Alerts and policy runs still live in SQLite.
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required")
		}
	default:
		return fmt.Errorf("storage.backend must be %s or %s, got %q",
			BackendSQLite, BackendClickHouse, c.Storage.Backend)
	}

	seen := make(map[string]bool)
	for i, policy := range c.Retention.Policies {
		if policy.ID == "" {
			return fmt.Errorf("retention.policies[%d].id is required", i)
		}
		if seen[policy.ID] {
			return fmt.Errorf("retention.policies[%d]: duplicate policy id %q", i, policy.ID)
		}
		seen[policy.ID] = true
		if policy.RetentionDays <= 0 {
			return fmt.Errorf("retention.policies[%d].retention_days must be > 0", i)
		}
		switch policy.Schedule {
		case models.ScheduleDaily, models.ScheduleWeekly, models.ScheduleMonthly:
		default:
			return fmt.Errorf("retention.policies[%d].schedule must be daily, weekly, or monthly", i)
		}
	}

	if c.Notifications.Email != nil {
		if c.Notifications.Email.Host == "" {
			return fmt.Errorf("notifications.email.host is required")
		}
		if c.Notifications.Email.From == "" {
			return fmt.Errorf("notifications.email.from is required")
		}
		if len(c.Notifications.Email.Recipients) == 0 {
			return fmt.Errorf("notifications.email.recipients is required")
		}
	}
	if c.Notifications.Webhook != nil && c.Notifications.Webhook.URL == "" {
		return fmt.Errorf("notifications.webhook.url is required")
	}
	if c.Notifications.SMS != nil && c.Notifications.SMS.GatewayURL == "" {
		return fmt.Errorf("notifications.sms.gateway_url is required")
	}

	return nil
}
