package storage

import (
	"time"

	"github.com/google/uuid"
)

// Run is a single recorded execution of a collect or upload stage.
type Run struct {
	ID          string    `json:"id"`
	Stage       string    `json:"stage"`    // "collect" | "upload"
	Resource    string    `json:"resource"` // "events" | "markets"
	Date        string    `json:"date"`     // collection date, YYYYMMDD
	Mode        string    `json:"mode,omitempty"` // sync mode, upload stage only
	Status      string    `json:"status"`         // "success" | "error"
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// RunStore implements persistence for pipeline run history.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(run *Run) error {
	run.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO runs (id, stage, resource, date, mode, status, rows_read, rows_written, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Stage, run.Resource, run.Date, run.Mode, run.Status,
		run.RowsRead, run.RowsWritten, run.Error, run.StartedAt, run.FinishedAt,
	)
	return err
}

func (s *RunStore) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.conn.Query(
		`SELECT id, stage, resource, date, mode, status, rows_read, rows_written, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Stage, &r.Resource, &r.Date, &r.Mode, &r.Status,
			&r.RowsRead, &r.RowsWritten, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListRunsFor returns the most recent runs for one resource.
func (s *RunStore) ListRunsFor(resource string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.conn.Query(
		`SELECT id, stage, resource, date, mode, status, rows_read, rows_written, error, started_at, finished_at
		 FROM runs WHERE resource = ? ORDER BY started_at DESC LIMIT ?`, resource, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Stage, &r.Resource, &r.Date, &r.Mode, &r.Status,
			&r.RowsRead, &r.RowsWritten, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
