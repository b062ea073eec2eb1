// Package marker persists upload markers: one file per (table,
// collection date), created only after a confirmed successful insert.
// Append-mode runs consult the marker to avoid re-inserting a date.
//
// Markers live on the runner's local filesystem. A run on a different
// machine, or after marker loss, will not see them and can insert the
// same date again.
package marker

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultTTL is the freshness window for a marker.
const DefaultTTL = 24 * time.Hour

// Store reads and writes marker files under Dir.
type Store struct {
	Dir string
	TTL time.Duration // freshness window, 0 means DefaultTTL
}

// Path returns the marker file path for (table, date). Dates use the
// compact YYYYMMDD form.
func (s Store) Path(table, date string) string {
	return filepath.Join(s.Dir, table+"_"+date+".uploaded")
}

// Fresh reports whether a marker exists for the exact date and was
// written within the freshness window. A marker older than the window
// is treated as absent even though the date matches.
func (s Store) Fresh(table, date string) bool {
	info, err := os.Stat(s.Path(table, date))
	if err != nil {
		return false
	}
	ttl := s.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return time.Since(info.ModTime()) < ttl
}

// Write records a successful upload for (table, date). Overwrites any
// stale marker, refreshing its modification time.
func (s Store) Write(table, date string) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	content := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(s.Path(table, date), []byte(content), 0644); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}
