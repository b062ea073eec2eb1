package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	"kalshidune/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Run history
// ─────────────────────────────────────────────────────────────

func newStore(t *testing.T) *storage.RunStore {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "nested", "runs.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return storage.NewRunStore(db)
}

func sampleRun(resource string, started time.Time) *storage.Run {
	return &storage.Run{
		Stage:       "collect",
		Resource:    resource,
		Date:        "20250825",
		Status:      "success",
		RowsRead:    10,
		RowsWritten: 10,
		StartedAt:   started,
		FinishedAt:  started.Add(time.Minute),
	}
}

func TestCreateRun_AssignsID(t *testing.T) {
	store := newStore(t)

	run := sampleRun("events", time.Now().UTC())
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("create: %v", err)
	}
	if run.ID == "" {
		t.Error("expected a generated run ID")
	}

	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.ID != run.ID || got.Stage != "collect" || got.Resource != "events" || got.Date != "20250825" {
		t.Errorf("unexpected run back: %+v", got)
	}
	if got.RowsRead != 10 || got.RowsWritten != 10 {
		t.Errorf("expected row counts persisted, got %d / %d", got.RowsRead, got.RowsWritten)
	}
	if got.StartedAt.Unix() != run.StartedAt.Unix() {
		t.Errorf("expected start time persisted, got %v want %v", got.StartedAt, run.StartedAt)
	}
}

func TestListRuns_NewestFirstWithLimit(t *testing.T) {
	store := newStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		if err := store.CreateRun(sampleRun("events", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	runs, err := store.ListRuns(3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].StartedAt.After(runs[i-1].StartedAt) {
			t.Errorf("expected newest-first ordering, got %v before %v", runs[i-1].StartedAt, runs[i].StartedAt)
		}
	}
}

func TestListRunsFor_FiltersByResource(t *testing.T) {
	store := newStore(t)

	now := time.Now().UTC()
	if err := store.CreateRun(sampleRun("events", now)); err != nil {
		t.Fatalf("create: %v", err)
	}
	failed := sampleRun("markets", now.Add(time.Minute))
	failed.Stage = "upload"
	failed.Mode = "append"
	failed.Status = "error"
	failed.Error = "insert into kalshi_markets: http 500"
	if err := store.CreateRun(failed); err != nil {
		t.Fatalf("create: %v", err)
	}

	runs, err := store.ListRunsFor("markets", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 markets run, got %d", len(runs))
	}
	got := runs[0]
	if got.Resource != "markets" || got.Stage != "upload" || got.Mode != "append" {
		t.Errorf("unexpected run back: %+v", got)
	}
	if got.Status != "error" || got.Error == "" {
		t.Errorf("expected the failure recorded, got %+v", got)
	}
}
