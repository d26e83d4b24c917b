package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"patchpipe/pkg/domain"
)

// openBacking opens a file-backed SQLite database standing in for Postgres.
// The snapshot statements stay inside the dialect both engines share.
func openBacking(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open backing db: %v", err)
	}
	return db
}

func TestRunInTransactionPersistsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg.db")
	db := openBacking(t, path)
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore(context.Background(), "ignored")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()

	var cellID string
	if err := store.RunInTransaction(context.Background(), func(tx domain.Session) error {
		expt, err := tx.CreateExperiment(domain.Experiment{ExtID: "exp1"})
		if err != nil {
			return err
		}
		cell, err := tx.CreateCell(domain.Cell{ExperimentID: expt.ID, ExtID: "exp1 1", DeviceID: 1})
		if err != nil {
			return err
		}
		cellID = cell.ID
		_, err = tx.AddIntrinsic(domain.IntrinsicRecord{CellID: cell.ID})
		return err
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var payload []byte
	if err := store.DB().QueryRow(`SELECT payload FROM state WHERE bucket = 'intrinsics'`).Scan(&payload); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var records map[string]domain.IntrinsicRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("snapshot holds %d records, want 1", len(records))
	}
	for _, rec := range records {
		if rec.CellID != cellID {
			t.Fatalf("snapshot cell = %s, want %s", rec.CellID, cellID)
		}
	}
}

func TestNewStoreHydratesFromSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg.db")

	db := openBacking(t, path)
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	store, err := NewStore(context.Background(), "ignored")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.RunInTransaction(context.Background(), func(tx domain.Session) error {
		expt, err := tx.CreateExperiment(domain.Experiment{ExtID: "exp1"})
		if err != nil {
			return err
		}
		_, err = tx.CreateCell(domain.Cell{ExperimentID: expt.ID, ExtID: "exp1 1", DeviceID: 1})
		return err
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	restore()
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db = openBacking(t, path)
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	reopened, err := NewStore(context.Background(), "ignored")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if err := reopened.View(context.Background(), func(view domain.SessionView) error {
		expt, err := view.ExperimentFromExtID("exp1")
		if err != nil {
			return err
		}
		if got := len(view.CellList(expt.ID)); got != 1 {
			return fmt.Errorf("hydrated %d cells, want 1", got)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestNewStoreOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, fmt.Errorf("connection refused")
	})
	defer restore()
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected open failure")
	}
}
