// Package snapshot names and locates the dated CSV snapshot files the
// collector writes and the uploader reads.
package snapshot

import (
	"os"
	"path/filepath"
	"strings"
)

// Store resolves snapshot file paths under a data directory.
// Files are named kalshi_{resource}_{YYYYMMDD}.csv.
type Store struct {
	Dir string
}

// Path returns the snapshot path for a resource and compact date (YYYYMMDD).
func (s Store) Path(resource, date string) string {
	return filepath.Join(s.Dir, "kalshi_"+resource+"_"+date+".csv")
}

// Exists reports whether the snapshot file for (resource, date) is present.
func (s Store) Exists(resource, date string) bool {
	info, err := os.Stat(s.Path(resource, date))
	return err == nil && !info.IsDir()
}

// Match parses a snapshot file name back into (resource, date).
// Used by the watch mode to map file events onto upload runs.
func Match(name string) (resource, date string, ok bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, "kalshi_") || !strings.HasSuffix(base, ".csv") {
		return "", "", false
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(base, "kalshi_"), ".csv")
	i := strings.LastIndex(stem, "_")
	if i <= 0 || i == len(stem)-1 {
		return "", "", false
	}
	resource, date = stem[:i], stem[i+1:]
	if len(date) != 8 {
		return "", "", false
	}
	for _, r := range date {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	return resource, date, true
}
