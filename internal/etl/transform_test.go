package etl_test

import (
	"math"
	"testing"

	"kalshidune/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// Transform tests
// ─────────────────────────────────────────────────────────────

func TestRenameTransform_FoldsAliases(t *testing.T) {
	tr := &etl.RenameTransform{Mapping: map[string]string{"DATE": "date"}}

	rec, keep := tr.Transform(etl.Record{Data: map[string]any{
		"DATE":   "2025-08-25",
		"ticker": "KXHIGHNY",
	}})
	if !keep {
		t.Fatal("expected record to be kept")
	}
	if _, ok := rec.Data["DATE"]; ok {
		t.Error("expected DATE to be removed")
	}
	if rec.Data["date"] != "2025-08-25" {
		t.Errorf("expected date=2025-08-25, got %v", rec.Data["date"])
	}
	if rec.Data["ticker"] != "KXHIGHNY" {
		t.Errorf("unmapped field changed: %v", rec.Data["ticker"])
	}
}

func TestRenameTransform_MissingSourceField(t *testing.T) {
	tr := &etl.RenameTransform{Mapping: map[string]string{"DATE": "date"}}

	rec, _ := tr.Transform(etl.Record{Data: map[string]any{"ticker": "X"}})
	if _, ok := rec.Data["date"]; ok {
		t.Error("rename of absent field should not create the target")
	}
}

func TestReorderTransform_IsTotal(t *testing.T) {
	tr := &etl.ReorderTransform{Fields: []string{"a", "b", "c"}, Fill: ""}

	// Input has an extra field and is missing one schema field.
	rec, keep := tr.Transform(etl.Record{Data: map[string]any{
		"a":     1.0,
		"c":     "x",
		"extra": "dropped",
	}})
	if !keep {
		t.Fatal("reorder must never drop records")
	}
	if len(rec.Data) != 3 {
		t.Fatalf("expected exactly 3 fields, got %d", len(rec.Data))
	}
	if rec.Data["a"] != 1.0 || rec.Data["c"] != "x" {
		t.Errorf("present fields not preserved: %v", rec.Data)
	}
	if rec.Data["b"] != "" {
		t.Errorf("missing field should be filled with %q, got %v", "", rec.Data["b"])
	}
	if _, ok := rec.Data["extra"]; ok {
		t.Error("extra field should be dropped silently")
	}
}

func TestReorderTransform_EmptyInput(t *testing.T) {
	tr := &etl.ReorderTransform{Fields: []string{"a", "b"}, Fill: ""}

	rec, keep := tr.Transform(etl.Record{Data: map[string]any{}})
	if !keep {
		t.Fatal("expected record kept")
	}
	if rec.Data["a"] != "" || rec.Data["b"] != "" {
		t.Errorf("all fields should be filled, got %v", rec.Data)
	}
}

func TestSanitizeTransform_NonFiniteAndOverflow(t *testing.T) {
	tr := &etl.SanitizeTransform{}

	rec, _ := tr.Transform(etl.Record{Data: map[string]any{
		"posinf": math.Inf(1),
		"neginf": math.Inf(-1),
		"nan":    math.NaN(),
		"big":    2e16,
		"negbig": -2e16,
		"edge":   1e15, // magnitude equal to the cap stays
		"ok":     42.5,
		"text":   "hello",
		"empty":  nil,
	}})

	for _, k := range []string{"posinf", "neginf", "nan", "big", "negbig", "empty"} {
		if rec.Data[k] != "" {
			t.Errorf("expected %s to be sanitized to empty string, got %v", k, rec.Data[k])
		}
	}
	if rec.Data["ok"] != 42.5 {
		t.Errorf("finite value changed: %v", rec.Data["ok"])
	}
	if rec.Data["edge"] != 1e15 {
		t.Errorf("value at the cap should survive, got %v", rec.Data["edge"])
	}
	if rec.Data["text"] != "hello" {
		t.Errorf("string value changed: %v", rec.Data["text"])
	}
	if tr.Replaced != 6 {
		t.Errorf("expected 6 replacements, got %d", tr.Replaced)
	}
}

func TestSanitizeTransform_CustomMagnitude(t *testing.T) {
	tr := &etl.SanitizeTransform{MaxMagnitude: 100}

	rec, _ := tr.Transform(etl.Record{Data: map[string]any{"v": 101.0, "w": 99.0}})
	if rec.Data["v"] != "" {
		t.Errorf("expected v over cap to be sanitized, got %v", rec.Data["v"])
	}
	if rec.Data["w"] != 99.0 {
		t.Errorf("expected w under cap untouched, got %v", rec.Data["w"])
	}
}

func TestApplyTransformers_ChainOrder(t *testing.T) {
	chain := []etl.Transformer{
		&etl.RenameTransform{Mapping: map[string]string{"DATE": "date"}},
		&etl.ReorderTransform{Fields: []string{"date", "yes_bid"}, Fill: ""},
		&etl.SanitizeTransform{},
	}

	rec, keep := etl.ApplyTransformers(etl.Record{Data: map[string]any{
		"DATE":    "2025-08-25",
		"yes_bid": math.Inf(1),
		"junk":    "x",
	}}, chain)
	if !keep {
		t.Fatal("expected record kept")
	}
	if len(rec.Data) != 2 {
		t.Fatalf("expected 2 fields after chain, got %d: %v", len(rec.Data), rec.Data)
	}
	if rec.Data["date"] != "2025-08-25" {
		t.Errorf("rename did not run before reorder: %v", rec.Data)
	}
	if rec.Data["yes_bid"] != "" {
		t.Errorf("expected infinite bid sanitized to empty string, got %v", rec.Data["yes_bid"])
	}
}
