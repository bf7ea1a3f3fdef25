// Package history is the read layer for a patient's clinical history. It
// exposes a small set of named, parameterized queries over the relational
// store holding imaging orders, performed procedures and reports, each keyed
// by patient or order and returning records in clinical (newest first) order
// with their related records attached.
package history

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/medvolt-imaging/voxelstore/internal/timeutil"
)

// DB wraps the clinical-history database connection.
type DB struct {
	*sql.DB

	// clock supplies default timestamps for records created without one.
	clock timeutil.Clock
}

// SetClock replaces the clock used for default timestamps. Tests use this
// with a timeutil.MockClock; production code never calls it.
func (db *DB) SetClock(c timeutil.Clock) { db.clock = c }

// Open opens (creating if necessary) the history database at path and applies
// the connection pragmas. Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database %s: %w", path, err)
	}

	// Enforce relational integrity between orders, procedures and reports,
	// and keep readers usable while a writer is active.
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	// A single connection keeps writers serialized and makes ":memory:"
	// databases behave: each pooled connection would otherwise see its own
	// empty in-memory database.
	db.SetMaxOpenConns(1)

	return &DB{DB: db, clock: timeutil.RealClock{}}, nil
}
