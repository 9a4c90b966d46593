package retention

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/calm-red-fox/aitrail/internal/models"
	"github.com/calm-red-fox/aitrail/internal/storage"
)

// compressionThreshold is the minimum payload size worth compressing.
// Small payloads usually grow under gzip+base64.
const compressionThreshold = 1024

// CompressInPlace walks stored records and gzip+base64-encodes payload
// fields larger than the threshold. Each field carries its own encoding
// flag, so a large input next to a small output leaves the output
// untouched and readers never have to sniff.
func (e *Engine) CompressInPlace(ctx context.Context) (*models.CompressionResult, error) {
	result := &models.CompressionResult{}

	filter := &models.ActivityFilter{
		Limit:    selectChunkSize,
		OrderAsc: true,
	}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		page, err := e.store.Query(ctx, filter)
		if err != nil {
			return result, fmt.Errorf("query records: %w", err)
		}
		for _, rec := range page {
			result.Examined++

			patch := &storage.RecordPatch{}
			saved := int64(0)
			gzb64 := models.EncodingGzipBase64

			if rec.InputEncoding != models.EncodingGzipBase64 && len(rec.InputData) > compressionThreshold {
				input, err := compressPayload(rec.InputData)
				if err != nil {
					return result, fmt.Errorf("compress record %s: %w", rec.ID, err)
				}
				patch.InputData = &input
				patch.InputEncoding = &gzb64
				saved += int64(len(rec.InputData) - len(input))
			}
			if rec.OutputEncoding != models.EncodingGzipBase64 && len(rec.OutputData) > compressionThreshold {
				output, err := compressPayload(rec.OutputData)
				if err != nil {
					return result, fmt.Errorf("compress record %s: %w", rec.ID, err)
				}
				patch.OutputData = &output
				patch.OutputEncoding = &gzb64
				saved += int64(len(rec.OutputData) - len(output))
			}
			if patch.InputEncoding == nil && patch.OutputEncoding == nil {
				continue
			}

			if err := e.store.Update(ctx, rec.ID, patch); err != nil {
				return result, fmt.Errorf("update record %s: %w", rec.ID, err)
			}
			result.Compressed++
			result.BytesSaved += saved
		}
		if len(page) < filter.Limit {
			return result, nil
		}
		filter.Offset += filter.Limit
	}
}

// compressPayload gzips then base64-encodes a payload string.
func compressPayload(s string) (string, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := gz.Write([]byte(s)); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodePayload returns the plaintext payload for a record field,
// honoring that field's encoding flag.
func DecodePayload(rec *models.ActivityRecord, field string) (string, error) {
	var value string
	var encoding models.PayloadEncoding
	switch field {
	case "input":
		value, encoding = rec.InputData, rec.InputEncoding
	case "output":
		value, encoding = rec.OutputData, rec.OutputEncoding
	default:
		return "", fmt.Errorf("unknown payload field %q", field)
	}

	if encoding != models.EncodingGzipBase64 {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("decode base64 payload: %w", err)
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("open gzip payload: %w", err)
	}
	defer gz.Close()

	plain, err := io.ReadAll(gz)
	if err != nil {
		return "", fmt.Errorf("decompress payload: %w", err)
	}
	return string(plain), nil
}
