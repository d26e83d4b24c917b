// Package notesdb is the secondary annotation store holding manual QC
// judgments for pair responses, keyed by pair and recording condition. It is
// a separate SQLite database from the result store: annotations are authored
// by humans during manual review and only read here.
package notesdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"patchpipe/pkg/domain"
)

// Note is one manual QC judgment for a (pair, clamp mode, holding)
// condition. ExpectedLatency is the reviewer's accepted response onset in
// seconds; fits whose latency falls within LatencyTolerance of it agree with
// the manual verdict.
type Note struct {
	PairKey         string
	ClampMode       domain.ClampMode
	Holding         float64
	QCPass          bool
	ExpectedLatency float64
	Comment         string
}

// LatencyTolerance is how far a fitted latency may sit from the annotated
// one and still count as matching (s).
const LatencyTolerance = 100e-6

// DB wraps the annotation database connection.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the annotation database at path. Use
// ":memory:" for tests.
func Open(path string) (*DB, error) {
	if path == "" {
		path = "notes.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open notes db: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS qc_notes (
		pair_key TEXT NOT NULL,
		clamp_mode TEXT NOT NULL,
		holding REAL NOT NULL,
		qc_pass INTEGER NOT NULL,
		expected_latency REAL NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (pair_key, clamp_mode, holding)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create qc_notes table: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the connection.
func (d *DB) Close() error { return d.db.Close() }

// Note returns the manual judgment for the given condition. The second
// return is false when no annotation exists.
func (d *DB) Note(ctx context.Context, pairKey string, mode domain.ClampMode, holding float64) (Note, bool, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT pair_key, clamp_mode, holding, qc_pass, expected_latency, comment
		 FROM qc_notes WHERE pair_key = ? AND clamp_mode = ? AND holding = ?`,
		pairKey, string(mode), holding)
	var n Note
	var mode2 string
	var pass int
	if err := row.Scan(&n.PairKey, &mode2, &n.Holding, &pass, &n.ExpectedLatency, &n.Comment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Note{}, false, nil
		}
		return Note{}, false, fmt.Errorf("query qc note: %w", err)
	}
	n.ClampMode = domain.ClampMode(mode2)
	n.QCPass = pass != 0
	return n, true, nil
}

// PutNote inserts or replaces a manual judgment. Used by review tooling and
// test fixtures.
func (d *DB) PutNote(ctx context.Context, n Note) error {
	pass := 0
	if n.QCPass {
		pass = 1
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO qc_notes (pair_key, clamp_mode, holding, qc_pass, expected_latency, comment)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.PairKey, string(n.ClampMode), n.Holding, pass, n.ExpectedLatency, n.Comment)
	if err != nil {
		return fmt.Errorf("store qc note: %w", err)
	}
	return nil
}
