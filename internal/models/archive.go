package models

import "time"

// ArchiveFormatVersion is the archive bundle version written by this
// build. Readers accept other versions but surface a warning.
const ArchiveFormatVersion = "1.1.0"

// DateRange is the inclusive time span covered by an archive.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ArchiveMetadata describes the contents of an archive bundle.
type ArchiveMetadata struct {
	DateRange      DateRange       `json:"date_range"`
	Models         []string        `json:"models"`
	OperationTypes []OperationType `json:"operation_types"`
	PolicyName     string          `json:"policy_name,omitempty"`
}

// ArchiveBundle is the portable export unit for activity records.
// When Compressed is true, the entire serialized bundle is gzipped on
// disk; the flag inside the envelope records how it was written.
type ArchiveBundle struct {
	Version      string            `json:"version"`
	ExportedAt   time.Time         `json:"exported_at"`
	TotalRecords int64             `json:"total_records"`
	Compressed   bool              `json:"compressed"`
	Metadata     ArchiveMetadata   `json:"metadata"`
	Records      []*ActivityRecord `json:"data"`
}
