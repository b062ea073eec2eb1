package etl

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes records into a target system. The local CSV
// writer lives here; the warehouse writer is in internal/dune and the
// mirror writer in internal/mirror.
//
// Pattern: Singer target protocol.

// SyncMode determines how records are written to the destination.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // delete all existing rows, insert fresh
	SyncAppend  SyncMode = "append"  // add rows without deleting existing
)

// Destination writes records to a target system.
// targetID names the destination object: a file path for the CSV writer,
// a table name for the warehouse and mirror writers.
type Destination interface {
	Write(ctx context.Context, targetID string, schema *Schema, records []Record, mode SyncMode) (int, error)
}

// ── CSV File Destination ───────────────────────────────────
// Writes records to a local headered CSV file. Snapshot files are
// written this way; the column set is whatever the schema carries, in
// schema order.

// CSVFileWriter implements Destination for local CSV files.
type CSVFileWriter struct{}

func (w *CSVFileWriter) Write(ctx context.Context, path string, schema *Schema, records []Record, mode SyncMode) (int, error) {
	if schema == nil || len(schema.Fields) == 0 {
		return 0, fmt.Errorf("csv write: empty schema")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create data directory: %w", err)
	}

	f, needHeader, err := openCSV(path, mode)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	fields := schema.FieldNames()

	if needHeader {
		if err := cw.Write(fields); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	written := 0
	for _, rec := range records {
		select {
		case <-ctx.Done():
			cw.Flush()
			return written, ctx.Err()
		default:
		}

		row := make([]string, len(fields))
		for i, name := range fields {
			row[i] = formatCSVValue(rec.Data[name])
		}
		if err := cw.Write(row); err != nil {
			return written, fmt.Errorf("write row %d: %w", written, err)
		}
		written++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("flush csv: %w", err)
	}
	return written, nil
}

// openCSV opens the target file according to the sync mode. In append
// mode the header is only written when the file is new or empty.
func openCSV(path string, mode SyncMode) (*os.File, bool, error) {
	if mode == SyncAppend {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, false, fmt.Errorf("open csv: %w", err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, false, fmt.Errorf("stat csv: %w", err)
		}
		return f, info.Size() == 0, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, false, fmt.Errorf("create csv: %w", err)
	}
	return f, true, nil
}

// EncodeCSV serializes records into a headered CSV document with one
// column per schema field, in schema order. Destinations that upload
// whole documents instead of streaming rows use this.
func EncodeCSV(schema *Schema, records []Record) ([]byte, error) {
	if schema == nil || len(schema.Fields) == 0 {
		return nil, fmt.Errorf("encode csv: empty schema")
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	fields := schema.FieldNames()

	if err := cw.Write(fields); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		row := make([]string, len(fields))
		for j, name := range fields {
			row[j] = formatCSVValue(rec.Data[name])
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// formatCSVValue renders a record value as a CSV cell.
func formatCSVValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return fmt.Sprint(n)
	}
}
