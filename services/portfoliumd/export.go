package portfoliumd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"
)

type eventRow struct {
	ID         int64  `parquet:"name=id, type=INT64"`
	Height     int64  `parquet:"name=height, type=INT64"`
	Module     string `parquet:"name=module, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Type       string `parquet:"name=type, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Portfolio  string `parquet:"name=portfolio, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Attributes string `parquet:"name=attributes, type=UTF8, encoding=PLAIN_DICTIONARY"`
	RecordedAt string `parquet:"name=recorded_at, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

// ExportParquet writes every record matching filter to path and returns the
// number of rows written. filter.Limit sets the page size of the scan.
func (i *EventIndex) ExportParquet(ctx context.Context, path string, filter EventFilter) (int, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("export: create directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(eventRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	written := 0
	page := filter
	if page.Limit <= 0 {
		page.Limit = defaultEventPageSize
	}
	if page.Limit > maxEventPageSize {
		page.Limit = maxEventPageSize
	}
	for {
		records, err := i.Query(ctx, page)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return written, err
		}
		for _, rec := range records {
			row := &eventRow{
				ID:         int64(rec.ID),
				Height:     int64(rec.Height),
				Module:     rec.Module,
				Type:       rec.Type,
				Portfolio:  rec.Portfolio,
				Attributes: rec.Attributes,
				RecordedAt: rec.RecordedAt.UTC().Format(time.RFC3339),
			}
			if err := pw.Write(row); err != nil {
				pw.WriteStop()
				file.Close()
				return written, fmt.Errorf("export: write row: %w", err)
			}
			written++
		}
		if len(records) < page.Limit {
			break
		}
		page.AfterID = records[len(records)-1].ID
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return written, fmt.Errorf("export: finalize parquet: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("export: close parquet: %w", err)
	}
	return written, nil
}

// WriteChecksum hashes the file at path with BLAKE3 and stores the hex digest
// next to it as path + ".blake3".
func WriteChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	defer file.Close()
	hasher := blake3.New(32, nil)
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	digest := hex.EncodeToString(hasher.Sum(nil))
	if err := os.WriteFile(path+".blake3", []byte(digest+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	return digest, nil
}
