package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nixlim/sqlsidecar/internal/poscache"
	"github.com/nixlim/sqlsidecar/internal/session"
)

func TestRecentPositionsNewestFirst(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	store.StorePosition(100, "/tmp/old.sql", poscache.Record{
		View:  session.ViewState{Line: 1},
		Saved: base,
	})
	store.StorePosition(100, "/tmp/mid.sql", poscache.Record{
		View:  session.ViewState{Line: 2},
		Saved: base.Add(10 * time.Minute),
	})
	store.StorePosition(200, "/tmp/new.sql", poscache.Record{
		View:  session.ViewState{Line: 3},
		Saved: base.Add(20 * time.Minute),
	})

	waitFor(t, 2*time.Second, func() bool {
		positions, err := store.RecentPositions(10)
		return err == nil && len(positions) == 3
	})

	positions, err := store.RecentPositions(2)
	if err != nil {
		t.Fatalf("recovering positions: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected limit 2 honored, got %d", len(positions))
	}
	if positions[0].Identity != "/tmp/new.sql" || positions[1].Identity != "/tmp/mid.sql" {
		t.Errorf("unexpected order: %q then %q", positions[0].Identity, positions[1].Identity)
	}
	if positions[0].PID != 200 || positions[0].Record.View.Line != 3 {
		t.Errorf("record mismatch: %+v", positions[0])
	}
}

func TestRecentPositionsSurviveRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "restart.db")
	store, err := Open(dbPath, 30, 90)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}

	store.StorePosition(100, "/tmp/a.sql", poscache.Record{
		View: session.ViewState{Line: 42, ScrollTop: 30},
		Folds: session.FoldState{Collapsed: []session.LineRange{
			{First: 5, Last: 9},
		}},
		Saved: time.Now(),
	})
	if err := store.Close(); err != nil {
		t.Fatalf("closing store: %v", err)
	}

	reopened, err := Open(dbPath, 30, 90)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer reopened.Close()

	positions, err := reopened.RecentPositions(10)
	if err != nil {
		t.Fatalf("recovering positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 recovered position, got %d", len(positions))
	}
	rec := positions[0].Record
	if rec.View.Line != 42 || rec.View.ScrollTop != 30 {
		t.Errorf("view mismatch: %+v", rec.View)
	}
	if len(rec.Folds.Collapsed) != 1 || rec.Folds.Collapsed[0].Last != 9 {
		t.Errorf("folds mismatch: %+v", rec.Folds)
	}
}

func TestRecentPositionsEmptyDatabase(t *testing.T) {
	store := openTestStore(t)

	positions, err := store.RecentPositions(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("expected no positions, got %d", len(positions))
	}
}
