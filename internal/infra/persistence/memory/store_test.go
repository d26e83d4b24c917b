package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"patchpipe/pkg/domain"
)

func seedExperiment(t *testing.T, s *Store, extID string) (domain.Experiment, domain.Cell, domain.Pair) {
	t.Helper()
	var expt domain.Experiment
	var cell domain.Cell
	var pair domain.Pair
	err := s.RunInTransaction(context.Background(), func(tx domain.Session) error {
		var err error
		expt, err = tx.CreateExperiment(domain.Experiment{ExtID: extID})
		if err != nil {
			return err
		}
		cell, err = tx.CreateCell(domain.Cell{ExperimentID: expt.ID, ExtID: extID + " 1", DeviceID: 1})
		if err != nil {
			return err
		}
		other, err := tx.CreateCell(domain.Cell{ExperimentID: expt.ID, ExtID: extID + " 2", DeviceID: 2})
		if err != nil {
			return err
		}
		pair, err = tx.CreatePair(domain.Pair{
			ExperimentID: expt.ID,
			PreCellID:    cell.ID,
			PostCellID:   other.ID,
			PreExtID:     cell.ExtID,
			PostExtID:    other.ExtID,
			HasSynapse:   true,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed experiment: %v", err)
	}
	return expt, cell, pair
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	s := NewStore()
	_, cell, _ := seedExperiment(t, s, "exp1")

	err := s.RunInTransaction(context.Background(), func(tx domain.Session) error {
		if _, err := tx.AddIntrinsic(domain.IntrinsicRecord{CellID: cell.ID}); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatalf("expected transaction error")
	}
	if got := len(s.ListIntrinsicRecords()); got != 0 {
		t.Fatalf("rollback leaked %d records", got)
	}
}

func TestReferentialGuards(t *testing.T) {
	s := NewStore()
	err := s.RunInTransaction(context.Background(), func(tx domain.Session) error {
		_, err := tx.AddIntrinsic(domain.IntrinsicRecord{CellID: "nope"})
		return err
	})
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) || notFound.Entity != domain.EntityCell {
		t.Fatalf("got %v, want cell-not-found", err)
	}

	err = s.RunInTransaction(context.Background(), func(tx domain.Session) error {
		_, err := tx.CreateCell(domain.Cell{ExperimentID: "nope"})
		return err
	})
	if !errors.As(err, &notFound) || notFound.Entity != domain.EntityExperiment {
		t.Fatalf("got %v, want experiment-not-found", err)
	}
}

func TestJobRecordQueriesTraceOwnership(t *testing.T) {
	s := NewStore()
	_, cellA, pairA := seedExperiment(t, s, "expA")
	_, cellB, _ := seedExperiment(t, s, "expB")

	err := s.RunInTransaction(context.Background(), func(tx domain.Session) error {
		if _, err := tx.AddIntrinsic(domain.IntrinsicRecord{CellID: cellA.ID}); err != nil {
			return err
		}
		if _, err := tx.AddIntrinsic(domain.IntrinsicRecord{CellID: cellB.ID}); err != nil {
			return err
		}
		_, err := tx.AddAvgResponseFit(domain.AvgResponseFitRecord{PairID: pairA.ID, ClampMode: domain.CurrentClamp, Holding: -70})
		return err
	})
	if err != nil {
		t.Fatalf("write records: %v", err)
	}

	if err := s.View(context.Background(), func(view domain.SessionView) error {
		recs := view.IntrinsicRecordsForJobs([]string{"expA"})
		if len(recs) != 1 || recs[0].CellID != cellA.ID {
			return fmt.Errorf("intrinsic records for expA: %+v", recs)
		}
		fits := view.AvgResponseFitsForJobs([]string{"expA", "expB"})
		if len(fits) != 1 || fits[0].PairID != pairA.ID {
			return fmt.Errorf("fit records: %+v", fits)
		}
		if got := view.IntrinsicRecordsForJobs([]string{"unknown"}); len(got) != 0 {
			return fmt.Errorf("records for unknown job: %+v", got)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteRecords(t *testing.T) {
	s := NewStore()
	_, cell, _ := seedExperiment(t, s, "exp1")

	var recID string
	if err := s.RunInTransaction(context.Background(), func(tx domain.Session) error {
		rec, err := tx.AddIntrinsic(domain.IntrinsicRecord{CellID: cell.ID})
		recID = rec.ID
		return err
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.RunInTransaction(context.Background(), func(tx domain.Session) error {
		return tx.DeleteIntrinsic(recID)
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := len(s.ListIntrinsicRecords()); got != 0 {
		t.Fatalf("record survived deletion")
	}

	err := s.RunInTransaction(context.Background(), func(tx domain.Session) error {
		return tx.DeleteIntrinsic(recID)
	})
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("got %v, want not-found for double delete", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := NewStore()
	_, cell, _ := seedExperiment(t, s, "exp1")
	if err := s.RunInTransaction(context.Background(), func(tx domain.Session) error {
		_, err := tx.AddIntrinsic(domain.IntrinsicRecord{CellID: cell.ID})
		return err
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	restored := NewStore()
	restored.ImportState(s.ExportState())
	if got := len(restored.ListIntrinsicRecords()); got != 1 {
		t.Fatalf("restored %d records, want 1", got)
	}
	if err := restored.View(context.Background(), func(view domain.SessionView) error {
		if _, err := view.ExperimentFromExtID("exp1"); err != nil {
			return err
		}
		return nil
	}); err != nil {
		t.Fatalf("restored state incomplete: %v", err)
	}
}

