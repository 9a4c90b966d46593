package retention

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/calm-red-fox/aitrail/internal/models"
)

func TestCompressInPlace(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	big := `{"prompt":"` + strings.Repeat("lorem ipsum ", 200) + `"}`
	seedAged(t, store, "big", 3, 5, func(r *models.ActivityRecord) {
		r.InputData = big
	})
	seedAged(t, store, "small", 4, 5, nil)

	result, err := engine.CompressInPlace(ctx)
	if err != nil {
		t.Fatalf("CompressInPlace: %v", err)
	}
	if result.Examined != 7 {
		t.Errorf("examined = %d, want 7", result.Examined)
	}
	if result.Compressed != 3 {
		t.Errorf("compressed = %d, want the 3 large records", result.Compressed)
	}
	if result.BytesSaved <= 0 {
		t.Errorf("bytes saved = %d, want > 0", result.BytesSaved)
	}

	rec, err := store.Activity().Get(ctx, "big-0000")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.InputEncoding != models.EncodingGzipBase64 {
		t.Errorf("input encoding = %q, want explicit flag", rec.InputEncoding)
	}
	if strings.Contains(rec.InputData, "lorem") {
		t.Error("input data stored uncompressed")
	}
	// The small output field must stay plain even though its sibling
	// input crossed the threshold.
	if rec.OutputEncoding != models.EncodingPlain {
		t.Errorf("output encoding = %q, want plain", rec.OutputEncoding)
	}
	if got, _ := DecodePayload(rec, "output"); got != rec.OutputData {
		t.Error("small output field must pass through unchanged")
	}

	plain, err := DecodePayload(rec, "input")
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if plain != big {
		t.Error("decoded payload differs from original")
	}

	// Untouched records keep plain payloads and a clear flag.
	small, err := store.Activity().Get(ctx, "small-0000")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if small.InputEncoding != models.EncodingPlain || small.OutputEncoding != models.EncodingPlain {
		t.Errorf("small record encodings = %q/%q", small.InputEncoding, small.OutputEncoding)
	}
	if got, _ := DecodePayload(small, "input"); got != small.InputData {
		t.Error("plain payload must pass through unchanged")
	}
}

func TestCompressInPlaceIdempotent(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	seedAged(t, store, "big", 2, 5, func(r *models.ActivityRecord) {
		r.OutputData = strings.Repeat("answer ", 400)
	})

	if _, err := engine.CompressInPlace(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := engine.CompressInPlace(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second.Compressed != 0 {
		t.Errorf("second pass compressed %d records, want 0", second.Compressed)
	}
}

func TestDecodePayloadUnknownField(t *testing.T) {
	if _, err := DecodePayload(&models.ActivityRecord{}, "sideband"); err == nil {
		t.Error("unknown field accepted")
	}
}

func TestStorageStats(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	seedAged(t, store, "gpt", 6, 10, nil)
	seedAged(t, store, "claude", 4, 40, func(r *models.ActivityRecord) {
		r.ModelName = "claude-3"
		r.Status = models.StatusError
	})

	stats, err := engine.StorageStats(ctx)
	if err != nil {
		t.Fatalf("StorageStats: %v", err)
	}
	if stats.TotalRecords != 10 {
		t.Errorf("total = %d, want 10", stats.TotalRecords)
	}
	if stats.CountsByModel["gpt-4"] != 6 || stats.CountsByModel["claude-3"] != 4 {
		t.Errorf("by model = %v", stats.CountsByModel)
	}
	if stats.CountsByStatus[models.StatusError] != 4 {
		t.Errorf("by status = %v", stats.CountsByStatus)
	}
	if stats.TotalSizeBytes <= 0 || stats.AverageRecordSizeBytes <= 0 {
		t.Errorf("sizes = %d/%d", stats.TotalSizeBytes, stats.AverageRecordSizeBytes)
	}
	if stats.OldestRecord == nil || stats.NewestRecord == nil {
		t.Fatal("record bounds missing")
	}
	if !stats.OldestRecord.Before(*stats.NewestRecord) {
		t.Errorf("bounds = %v / %v", stats.OldestRecord, stats.NewestRecord)
	}
	if stats.OldestRecord.AddDate(0, 0, 40).Sub(testBase) > time.Minute {
		t.Errorf("oldest = %v, want ~40 days back", stats.OldestRecord)
	}
}

func TestStorageStatsEmpty(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	stats, err := engine.StorageStats(context.Background())
	if err != nil {
		t.Fatalf("StorageStats: %v", err)
	}
	if stats.TotalRecords != 0 || stats.OldestRecord != nil || stats.NewestRecord != nil {
		t.Errorf("stats = %+v, want empty", stats)
	}
}
