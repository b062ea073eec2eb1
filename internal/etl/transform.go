package etl

import (
	"math"
)

// ── Transformer ────────────────────────────────────────────
// Transformers modify records in-flight between source and destination.
// They are composable: each takes a record, returns a (possibly modified)
// record and a boolean indicating whether to keep it.
//
// Pattern: Benthos processor chain.

// Transformer processes a single record.
// Returns (transformed record, keep). If keep is false, the record is dropped.
type Transformer interface {
	Transform(Record) (Record, bool)
}

// ── Built-in Transforms ────────────────────────────────────

// RenameTransform renames fields in a record. Used to fold known
// case-variant aliases (the collector writes an uppercase DATE column)
// onto their canonical destination names.
type RenameTransform struct {
	Mapping map[string]string // oldName → newName
}

func (t *RenameTransform) Transform(r Record) (Record, bool) {
	for old, new_ := range t.Mapping {
		if v, ok := r.Data[old]; ok {
			r.Data[new_] = v
			delete(r.Data, old)
		}
	}
	return r, true
}

// ReorderTransform reshapes a record to exactly the given field set:
// fields absent from the input are filled with Fill, input fields not in
// the list are dropped without error. The operation is total — it never
// fails, whatever the input columns are. Column order itself is imposed
// at serialization time from the same field list.
type ReorderTransform struct {
	Fields []string
	Fill   any // sentinel for missing fields, typically ""
}

func (t *ReorderTransform) Transform(r Record) (Record, bool) {
	out := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		if v, ok := r.Data[f]; ok {
			out[f] = v
		} else {
			out[f] = t.Fill
		}
	}
	r.Data = out
	return r, true
}

// SanitizeTransform makes numeric values safe for the bulk-load wire
// format: ±Inf, NaN and magnitudes above MaxMagnitude become null, then
// every null becomes the empty-string sentinel (the destination format
// has no native null). Replaced counts how many values were rewritten.
type SanitizeTransform struct {
	MaxMagnitude float64 // 0 means the default of 1e15
	Replaced     int
}

func (t *SanitizeTransform) Transform(r Record) (Record, bool) {
	max := t.MaxMagnitude
	if max == 0 {
		max = 1e15
	}
	for k, v := range r.Data {
		if f, ok := v.(float64); ok {
			if math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) > max {
				v = nil
			}
		}
		if v == nil {
			r.Data[k] = ""
			t.Replaced++
		}
	}
	return r, true
}

// ── Helpers ────────────────────────────────────────────────

// ApplyTransformers runs a chain of transformers on a record.
func ApplyTransformers(r Record, ts []Transformer) (Record, bool) {
	for _, t := range ts {
		var keep bool
		r, keep = t.Transform(r)
		if !keep {
			return r, false
		}
	}
	return r, true
}
