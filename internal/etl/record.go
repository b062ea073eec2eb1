package etl

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// Sources emit Records, transforms reshape them, destinations consume them.
// Inspired by the Airbyte record protocol / Singer record message.

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number" | "boolean" | "datetime"
}

// Schema describes the shape of records flowing through a sync.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Record is a single row of data flowing through the pipeline.
// Values are scalars (string, float64, bool) or nil; nested structures
// are flattened to JSON strings at the source boundary.
type Record struct {
	Data map[string]any `json:"data"`
}
