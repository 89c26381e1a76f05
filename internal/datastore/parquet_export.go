package datastore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aleister1102/marketplace-monitor/internal/common"
	"github.com/parquet-go/parquet-go"
)

// ParquetCheckRecord is the Parquet schema of an exported check.
// Timestamps are Unix milliseconds.
type ParquetCheckRecord struct {
	RunID               string   `parquet:"run_id"`
	Site                string   `parquet:"site"`
	Parser              string   `parquet:"parser"`
	StartedAt           int64    `parquet:"started_at"`
	DurationMs          int64    `parquet:"duration_ms"`
	Success             bool     `parquet:"success"`
	Error               *string  `parquet:"error,optional"`
	Events              int32    `parquet:"events"`
	ConsecutiveFailures int32    `parquet:"consecutive_failures"`
	AvailableSizes      []string `parquet:"available_sizes,list"`
	SnapshotsJSON       *string  `parquet:"snapshots_json,optional"`
}

// ExportOptions controls the Parquet export
type ExportOptions struct {
	// Compression is one of zstd, snappy, gzip or none. Empty means zstd.
	Compression string
	// RowGroupSize is the number of records flushed per row group
	RowGroupSize int
}

// DefaultExportOptions returns default export options
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Compression:  "zstd",
		RowGroupSize: 1000,
	}
}

// ToParquet converts a stored check to its Parquet row
func (r CheckRecord) ToParquet() (ParquetCheckRecord, error) {
	row := ParquetCheckRecord{
		RunID:               r.RunID,
		Site:                r.Site,
		Parser:              r.Parser,
		StartedAt:           r.StartedAt.UnixMilli(),
		DurationMs:          r.Duration.Milliseconds(),
		Success:             r.Success,
		Events:              int32(r.Events),
		ConsecutiveFailures: int32(r.ConsecutiveFailures),
		AvailableSizes:      r.AvailableSizes,
	}
	if r.Error != "" {
		errText := r.Error
		row.Error = &errText
	}
	if len(r.Snapshots) > 0 {
		data, err := json.Marshal(r.Snapshots)
		if err != nil {
			return ParquetCheckRecord{}, common.WrapErrorf(err, "failed to encode snapshots of run '%s'", r.RunID)
		}
		encoded := string(data)
		row.SnapshotsJSON = &encoded
	}
	return row, nil
}

// WriteParquet writes records to w and returns the number of rows written
func WriteParquet(w io.Writer, records []CheckRecord, opts ExportOptions) (int, error) {
	if opts.RowGroupSize <= 0 {
		opts.RowGroupSize = DefaultExportOptions().RowGroupSize
	}

	writer := parquet.NewGenericWriter[ParquetCheckRecord](w, compressionOption(opts.Compression))

	written := 0
	batch := make([]ParquetCheckRecord, 0, opts.RowGroupSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := writer.Write(batch)
		written += n
		if err != nil {
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
		batch = batch[:0]
		return writer.Flush()
	}

	for _, record := range records {
		row, err := record.ToParquet()
		if err != nil {
			_ = writer.Close()
			return written, err
		}
		batch = append(batch, row)
		if len(batch) == opts.RowGroupSize {
			if err := flush(); err != nil {
				_ = writer.Close()
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		_ = writer.Close()
		return written, err
	}
	if err := writer.Close(); err != nil {
		return written, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return written, nil
}

// ExportParquet writes every check started at or after since to a Parquet file at path
func (s *HistoryStore) ExportParquet(path string, since time.Time, opts ExportOptions) (int, error) {
	records, err := s.Since(since)
	if err != nil {
		return 0, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, fmt.Errorf("failed to create export directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet file %s: %w", path, err)
	}

	written, writeErr := WriteParquet(file, records, opts)
	closeErr := file.Close()
	if writeErr != nil {
		_ = os.Remove(path)
		return 0, writeErr
	}
	if closeErr != nil {
		return 0, fmt.Errorf("failed to close parquet file %s: %w", path, closeErr)
	}

	s.logger.Info().
		Str("path", path).
		Int("records", written).
		Time("since", since).
		Msg("Exported check history to parquet")
	return written, nil
}

func compressionOption(name string) parquet.WriterOption {
	switch name {
	case "gzip":
		return parquet.Compression(&parquet.Gzip)
	case "snappy":
		return parquet.Compression(&parquet.Snappy)
	case "none":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Zstd)
	}
}
