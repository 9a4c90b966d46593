package models

import "time"

// Schedule determines how often a retention policy runs.
type Schedule string

const (
	ScheduleDaily   Schedule = "daily"
	ScheduleWeekly  Schedule = "weekly"
	ScheduleMonthly Schedule = "monthly"
)

// Interval returns the nominal time between runs of the schedule.
func (s Schedule) Interval() time.Duration {
	switch s {
	case ScheduleWeekly:
		return 7 * 24 * time.Hour
	case ScheduleMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ParseSchedule converts a string to Schedule, defaulting to daily.
func ParseSchedule(s string) Schedule {
	switch s {
	case "weekly":
		return ScheduleWeekly
	case "monthly":
		return ScheduleMonthly
	default:
		return ScheduleDaily
	}
}

// RetentionPolicy is a named rule for aging out activity records.
type RetentionPolicy struct {
	// ID uniquely identifies the policy.
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable policy name.
	Name string `yaml:"name" json:"name"`

	// RetentionDays is how long records live before expiry. Must be > 0.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`

	// ArchiveBeforeDelete controls whether expired records are written
	// to an archive bundle before deletion. A policy with this false
	// never produces an archive artifact; deletion still proceeds.
	ArchiveBeforeDelete bool `yaml:"archive_before_delete" json:"archive_before_delete"`

	// CompressionEnabled gzips the archive bundle.
	CompressionEnabled bool `yaml:"compression_enabled" json:"compression_enabled"`

	// Optional selection filters. Empty slices match everything.
	OperationTypes []OperationType   `yaml:"operation_types,omitempty" json:"operation_types,omitempty"`
	Models         []string          `yaml:"models,omitempty" json:"models,omitempty"`
	Statuses       []OperationStatus `yaml:"statuses,omitempty" json:"statuses,omitempty"`

	// Enabled controls whether the scheduler runs this policy.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Schedule is the run cadence: daily, weekly, or monthly.
	Schedule Schedule `yaml:"schedule" json:"schedule"`
}

// Matches reports whether the record satisfies the policy's filters.
func (p *RetentionPolicy) Matches(r *ActivityRecord) bool {
	if len(p.OperationTypes) > 0 && !containsOp(p.OperationTypes, r.OperationType) {
		return false
	}
	if len(p.Models) > 0 && !containsString(p.Models, r.ModelName) {
		return false
	}
	if len(p.Statuses) > 0 && !containsStatus(p.Statuses, r.Status) {
		return false
	}
	return true
}

func containsOp(s []OperationType, v OperationType) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsStatus(s []OperationStatus, v OperationStatus) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// ArchivalResult reports the outcome of one retention policy execution.
type ArchivalResult struct {
	PolicyID         string   `json:"policy_id"`
	PolicyName       string   `json:"policy_name"`
	TotalLogs        int64    `json:"total_logs"`
	ArchivedLogs     int64    `json:"archived_logs"`
	DeletedLogs      int64    `json:"deleted_logs"`
	ArchiveSizeBytes int64    `json:"archive_size_bytes"`
	CompressionRatio float64  `json:"compression_ratio,omitempty"`
	ArchiveLocation  string   `json:"archive_location,omitempty"`
	ExecutionTimeMs  int64    `json:"execution_time_ms"`
	Errors           []string `json:"errors,omitempty"`
}

// ImportResult reports the outcome of an archive import.
type ImportResult struct {
	Imported int64    `json:"imported"`
	Skipped  int64    `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// CompressionResult reports the outcome of an in-place compression pass.
type CompressionResult struct {
	Examined   int64 `json:"examined"`
	Compressed int64 `json:"compressed"`
	BytesSaved int64 `json:"bytes_saved"`
}

// StorageStats summarizes the stored record population.
type StorageStats struct {
	TotalRecords           int64                     `json:"total_records"`
	TotalSizeBytes         int64                     `json:"total_size_bytes"`
	AverageRecordSizeBytes int64                     `json:"average_record_size_bytes"`
	OldestRecord           *time.Time                `json:"oldest_record,omitempty"`
	NewestRecord           *time.Time                `json:"newest_record,omitempty"`
	CountsByModel          map[string]int64          `json:"counts_by_model"`
	CountsByStatus         map[OperationStatus]int64 `json:"counts_by_status"`
}

// PolicyRun records when a retention policy last executed. The scheduler
// persists this so a missed run executes on the next startup instead of
// being silently skipped.
type PolicyRun struct {
	PolicyID    string    `json:"policy_id"`
	LastRunAt   time.Time `json:"last_run_at"`
	LastSuccess bool      `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
}
