package notesdb

import (
	"context"
	"testing"

	"patchpipe/pkg/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open notes db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNoteRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	want := Note{
		PairKey:         "cell1~cell2",
		ClampMode:       domain.CurrentClamp,
		Holding:         -70,
		QCPass:          true,
		ExpectedLatency: 1.5e-3,
		Comment:         "clean monosynaptic response",
	}
	if err := db.PutNote(ctx, want); err != nil {
		t.Fatalf("put note: %v", err)
	}

	got, ok, err := db.Note(ctx, "cell1~cell2", domain.CurrentClamp, -70)
	if err != nil {
		t.Fatalf("note: %v", err)
	}
	if !ok {
		t.Fatalf("note not found")
	}
	if got != want {
		t.Fatalf("note = %+v, want %+v", got, want)
	}
}

func TestNoteMissingCondition(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, ok, err := db.Note(ctx, "cell1~cell2", domain.VoltageClamp, -55)
	if err != nil {
		t.Fatalf("note: %v", err)
	}
	if ok {
		t.Fatalf("expected no annotation")
	}
}

func TestPutNoteReplaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	n := Note{PairKey: "a~b", ClampMode: domain.CurrentClamp, Holding: -70, QCPass: false, ExpectedLatency: 1e-3}
	if err := db.PutNote(ctx, n); err != nil {
		t.Fatalf("put note: %v", err)
	}
	n.QCPass = true
	n.ExpectedLatency = 2e-3
	if err := db.PutNote(ctx, n); err != nil {
		t.Fatalf("replace note: %v", err)
	}

	got, ok, err := db.Note(ctx, "a~b", domain.CurrentClamp, -70)
	if err != nil || !ok {
		t.Fatalf("note: ok=%v err=%v", ok, err)
	}
	if !got.QCPass || got.ExpectedLatency != 2e-3 {
		t.Fatalf("replacement lost: %+v", got)
	}
}
