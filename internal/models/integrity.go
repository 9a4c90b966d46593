package models

// IssueSeverity grades an integrity finding.
type IssueSeverity string

const (
	IssueLow    IssueSeverity = "low"
	IssueMedium IssueSeverity = "medium"
	IssueHigh   IssueSeverity = "high"
)

// IntegrityIssue is one detected problem in a stored record. Issues are
// returned to the caller as part of a report; they are never persisted
// by the auditor itself.
type IntegrityIssue struct {
	RecordID string        `json:"record_id"`
	Issue    string        `json:"issue"`
	Severity IssueSeverity `json:"severity"`
}

// IntegrityReport is the result of a full integrity audit pass.
type IntegrityReport struct {
	TotalRecords          int64            `json:"total_records"`
	CorruptedCount        int64            `json:"corrupted_count"`
	MissingFieldsCount    int64            `json:"missing_fields_count"`
	InvalidTimestampCount int64            `json:"invalid_timestamp_count"`
	DuplicateIDCount      int64            `json:"duplicate_id_count"`
	Issues                []IntegrityIssue `json:"issues"`
}

// Healthy reports whether the audit found no issues at all.
func (r *IntegrityReport) Healthy() bool {
	return len(r.Issues) == 0
}
