package mirror

import (
	_ "modernc.org/sqlite"
)

// sqliteDSN opens the mirror file in WAL mode with a busy timeout so
// the pipeline and ad-hoc readers can share it.
func sqliteDSN(cfg Config) string {
	return cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000"
}
