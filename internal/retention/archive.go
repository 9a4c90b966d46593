package retention

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/calm-red-fox/aitrail/internal/models"
)

// gzipMagic is the two-byte gzip stream prefix. The reader sniffs it
// instead of trusting file extensions.
var gzipMagic = []byte{0x1f, 0x8b}

// EncodeBundle serializes a bundle, gzipping the whole envelope when
// compressed is set. The bundle's Compressed flag is stamped to match
// what was actually written.
func EncodeBundle(w io.Writer, bundle *models.ArchiveBundle, compressed bool) error {
	bundle.Compressed = compressed

	if !compressed {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(bundle)
	}

	gz, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return fmt.Errorf("create gzip writer: %w", err)
	}
	if err := json.NewEncoder(gz).Encode(bundle); err != nil {
		gz.Close()
		return fmt.Errorf("encode bundle: %w", err)
	}
	return gz.Close()
}

// DecodeBundle reads an archive bundle, transparently handling gzip.
// A version other than the current one is reported through the warning
// return, never as an error: old archives must stay importable.
func DecodeBundle(r io.Reader) (*models.ArchiveBundle, string, error) {
	br := bufio.NewReader(r)

	head, err := br.Peek(2)
	if err != nil {
		return nil, "", fmt.Errorf("read archive header: %w", err)
	}

	var src io.Reader = br
	if bytes.Equal(head, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	var bundle models.ArchiveBundle
	if err := json.NewDecoder(src).Decode(&bundle); err != nil {
		return nil, "", fmt.Errorf("decode bundle: %w", err)
	}

	var warning string
	if bundle.Version != models.ArchiveFormatVersion {
		warning = fmt.Sprintf("archive version %q differs from current %q; importing anyway",
			bundle.Version, models.ArchiveFormatVersion)
	}
	return &bundle, warning, nil
}

// buildBundle assembles the envelope for a set of expired records.
func buildBundle(records []*models.ActivityRecord, policyName string, exportedAt time.Time) *models.ArchiveBundle {
	meta := models.ArchiveMetadata{
		PolicyName:     policyName,
		Models:         []string{},
		OperationTypes: []models.OperationType{},
	}

	seenModels := make(map[string]bool)
	seenOps := make(map[models.OperationType]bool)
	for i, rec := range records {
		if i == 0 || rec.Timestamp.Before(meta.DateRange.Start) {
			meta.DateRange.Start = rec.Timestamp
		}
		if rec.Timestamp.After(meta.DateRange.End) {
			meta.DateRange.End = rec.Timestamp
		}
		if !seenModels[rec.ModelName] {
			seenModels[rec.ModelName] = true
			meta.Models = append(meta.Models, rec.ModelName)
		}
		if !seenOps[rec.OperationType] {
			seenOps[rec.OperationType] = true
			meta.OperationTypes = append(meta.OperationTypes, rec.OperationType)
		}
	}

	return &models.ArchiveBundle{
		Version:      models.ArchiveFormatVersion,
		ExportedAt:   exportedAt,
		TotalRecords: int64(len(records)),
		Metadata:     meta,
		Records:      records,
	}
}
