package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/calm-red-fox/aitrail/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: sqlite
  sqlite_path: /var/lib/aitrail/aitrail.db
api:
  address: ":8181"
metrics:
  enabled: true
retention:
  archive_dir: /var/lib/aitrail/archives
  policies:
    - id: expire-90d
      name: expire after ninety days
      retention_days: 90
      archive_before_delete: true
      compression_enabled: true
      enabled: true
      schedule: weekly
alerts:
  rules_file: /etc/aitrail/rules.yaml
  aggregation_window: 30m
  channels: [in_app, webhook]
notifications:
  webhook:
    url: https://hooks.example.com/aitrail
    headers:
      X-Token: secret
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.SQLitePath != "/var/lib/aitrail/aitrail.db" {
		t.Errorf("sqlite path = %q", cfg.Storage.SQLitePath)
	}
	if cfg.API.Address != ":8181" {
		t.Errorf("api address = %q", cfg.API.Address)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Address != ":9090" {
		t.Errorf("metrics = %+v, want enabled with default address", cfg.Metrics)
	}
	if len(cfg.Retention.Policies) != 1 {
		t.Fatalf("policies = %d", len(cfg.Retention.Policies))
	}
	policy := cfg.Retention.Policies[0]
	if policy.RetentionDays != 90 || policy.Schedule != models.ScheduleWeekly {
		t.Errorf("policy = %+v", policy)
	}
	if cfg.Alerts.AggregationWindow != 30*time.Minute {
		t.Errorf("aggregation window = %v", cfg.Alerts.AggregationWindow)
	}
	if cfg.Notifications.Webhook == nil || cfg.Notifications.Webhook.Headers["X-Token"] != "secret" {
		t.Errorf("webhook = %+v", cfg.Notifications.Webhook)
	}
	if cfg.Notifications.Email != nil {
		t.Error("email should stay nil when absent")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Storage.Backend != BackendSQLite || cfg.Storage.SQLitePath != "aitrail.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.API.Address != ":8080" || cfg.Metrics.Address != ":9090" {
		t.Errorf("addresses = %q, %q", cfg.API.Address, cfg.Metrics.Address)
	}
	if cfg.Integrity.Interval != 6*time.Hour {
		t.Errorf("integrity interval = %v", cfg.Integrity.Interval)
	}
	if cfg.Anomaly.SweepInterval != time.Hour || cfg.Anomaly.LookbackHours != 24 {
		t.Errorf("anomaly = %+v", cfg.Anomaly)
	}
	if cfg.Alerts.MaxAlertsPerWindow != 3 || cfg.Alerts.AggregationWindow != 15*time.Minute {
		t.Errorf("alerts = %+v", cfg.Alerts)
	}
	if len(cfg.Alerts.Channels) != 1 || cfg.Alerts.Channels[0] != "in_app" {
		t.Errorf("channels = %v", cfg.Alerts.Channels)
	}
	if cfg.Notifications.RateLimit.MaxPerWindow != 10 || cfg.Notifications.RateLimit.Window != time.Minute {
		t.Errorf("rate limit = %+v", cfg.Notifications.RateLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestPolicyScheduleDefaultsToDaily(t *testing.T) {
	path := writeConfig(t, `
retention:
  policies:
    - id: expire-30d
      retention_days: 30
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retention.Policies[0].Schedule != models.ScheduleDaily {
		t.Errorf("schedule = %q", cfg.Retention.Policies[0].Schedule)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad backend",
			yaml:    "storage:\n  backend: postgres\n",
			wantErr: "storage.backend",
		},
		{
			name:    "clickhouse without addr",
			yaml:    "storage:\n  backend: clickhouse\n",
			wantErr: "clickhouse.addr",
		},
		{
			name:    "policy without id",
			yaml:    "retention:\n  policies:\n    - retention_days: 30\n",
			wantErr: "id is required",
		},
		{
			name: "duplicate policy id",
			yaml: `retention:
  policies:
    - id: p1
      retention_days: 30
    - id: p1
      retention_days: 60
`,
			wantErr: "duplicate policy id",
		},
		{
			name:    "policy without retention days",
			yaml:    "retention:\n  policies:\n    - id: p1\n",
			wantErr: "retention_days",
		},
		{
			name: "policy with bad schedule",
			yaml: `retention:
  policies:
    - id: p1
      retention_days: 30
      schedule: hourly
`,
			wantErr: "schedule",
		},
		{
			name:    "email without host",
			yaml:    "notifications:\n  email:\n    from: a@b.c\n    recipients: [x@y.z]\n",
			wantErr: "email.host",
		},
		{
			name:    "webhook without url",
			yaml:    "notifications:\n  webhook:\n    headers: {}\n",
			wantErr: "webhook.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
