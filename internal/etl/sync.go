package etl

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ── SyncJob ────────────────────────────────────────────────
// Orchestrates: source.Read → transform chain → destination.Write.
//
// Pattern: Airbyte sync / Singer tap→target pipeline.

// SyncJob holds the configuration for a single sync.
type SyncJob struct {
	Name        string        // stage label, e.g. "collect:events"
	SourceType  string        // registry key of the source
	SourceCfg   SourceConfig  // parsed by the source implementation
	Transforms  []Transformer // applied in order to every record
	TargetID    string        // file path or table name, per destination
	Schema      *Schema       // output schema; nil derives one from the records
	SyncMode    SyncMode
	FailOnEmpty bool // treat a zero-record read as an error, skipping the write
}

// SyncResult is the outcome of running a sync job.
type SyncResult struct {
	Name        string        `json:"name"`
	Status      string        `json:"status"` // "success" | "error"
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs sync jobs using the registered sources and a destination.
type Engine struct {
	Dest Destination
}

// RunSync executes a sync job end-to-end.
func (e *Engine) RunSync(ctx context.Context, job *SyncJob) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{Name: job.Name}

	fail := func(err error) (*SyncResult, error) {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	// 1. Resolve source from registry.
	source, err := GetSource(job.SourceType)
	if err != nil {
		return fail(err)
	}

	// 2. Read records from source.
	recCh, errCh := source.Read(ctx, job.SourceCfg)

	// 3. Collect + transform records.
	var records []Record
	for rec := range recCh {
		result.RowsRead++
		transformed, keep := ApplyTransformers(rec, job.Transforms)
		if keep {
			records = append(records, transformed)
		}
	}

	// Check for source errors.
	if err := <-errCh; err != nil {
		return fail(fmt.Errorf("read: %w", err))
	}

	if len(records) == 0 && job.FailOnEmpty {
		return fail(fmt.Errorf("no records read from source"))
	}

	// 4. Resolve the output schema. Jobs writing to a fixed table carry
	// one; snapshot jobs derive it from whatever fields the source
	// produced.
	schema := job.Schema
	if schema == nil {
		schema = deriveSchemaFromRecords(records)
	}

	// 5. Write to destination.
	written, err := e.Dest.Write(ctx, job.TargetID, schema, records, job.SyncMode)
	if err != nil {
		result.RowsWritten = written
		return fail(fmt.Errorf("write: %w", err))
	}

	result.Status = "success"
	result.RowsWritten = written
	result.Duration = time.Since(start)
	return result, nil
}

// deriveSchemaFromRecords builds a schema from the keys present in the
// records. Field names are sorted so snapshot files keep a stable column
// order across runs.
func deriveSchemaFromRecords(records []Record) *Schema {
	seen := make(map[string]string) // name → type
	for _, r := range records {
		for k, v := range r.Data {
			if _, ok := seen[k]; !ok {
				seen[k] = inferFieldType(v)
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, len(names))
	for i, name := range names {
		fields[i] = Field{Name: name, Type: seen[name]}
	}
	return &Schema{Fields: fields}
}

func inferFieldType(v any) string {
	switch v.(type) {
	case float64, float32, int, int64:
		return "number"
	case bool:
		return "boolean"
	default:
		return "text"
	}
}
