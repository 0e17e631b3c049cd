package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nixlim/sqlsidecar/internal/poscache"
	"github.com/nixlim/sqlsidecar/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(dbPath, 30, 90)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// waitFor polls until the condition holds or the deadline passes. Writes go
// through the async writer, so reads after writes need a grace period.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func testRecord(line, col, scroll int) poscache.Record {
	return poscache.Record{
		View:  session.ViewState{Line: line, Column: col, ScrollTop: scroll},
		Saved: time.Now(),
	}
}

func TestStorePositionRoundTrip(t *testing.T) {
	store := openTestStore(t)

	store.StorePosition(100, "/tmp/a.sql", poscache.Record{
		View: session.ViewState{Line: 42, Column: 7, ScrollTop: 30},
		Folds: session.FoldState{Collapsed: []session.LineRange{
			{First: 10, Last: 20},
		}},
		Saved: time.Now(),
	})

	waitFor(t, 2*time.Second, func() bool {
		_, ok := store.LoadPosition(100, "/tmp/a.sql")
		return ok
	})

	rec, ok := store.LoadPosition(100, "/tmp/a.sql")
	if !ok {
		t.Fatal("expected position found")
	}
	if rec.View.Line != 42 || rec.View.Column != 7 || rec.View.ScrollTop != 30 {
		t.Errorf("view mismatch: %+v", rec.View)
	}
	if len(rec.Folds.Collapsed) != 1 || rec.Folds.Collapsed[0].First != 10 {
		t.Errorf("folds mismatch: %+v", rec.Folds)
	}
	if rec.Saved.IsZero() {
		t.Error("expected saved timestamp set")
	}
}

func TestStorePositionUpsert(t *testing.T) {
	store := openTestStore(t)

	store.StorePosition(100, "/tmp/a.sql", testRecord(1, 1, 0))
	store.StorePosition(100, "/tmp/a.sql", testRecord(99, 5, 80))

	waitFor(t, 2*time.Second, func() bool {
		rec, ok := store.LoadPosition(100, "/tmp/a.sql")
		return ok && rec.View.Line == 99
	})

	rec, _ := store.LoadPosition(100, "/tmp/a.sql")
	if rec.View.ScrollTop != 80 {
		t.Errorf("expected upserted scroll 80, got %d", rec.View.ScrollTop)
	}
}

func TestLoadPositionMiss(t *testing.T) {
	store := openTestStore(t)

	if _, ok := store.LoadPosition(999, "/nowhere.sql"); ok {
		t.Error("expected miss for unknown position")
	}
}

func TestStorePositionIgnoresEmptyIdentity(t *testing.T) {
	store := openTestStore(t)

	store.StorePosition(100, "", testRecord(5, 5, 0))

	// Give the writer a flush cycle; nothing should land.
	time.Sleep(200 * time.Millisecond)
	if _, ok := store.LoadPosition(100, ""); ok {
		t.Error("expected empty identity not persisted")
	}
}

func TestDropPositions(t *testing.T) {
	store := openTestStore(t)

	store.StorePosition(100, "/tmp/a.sql", testRecord(1, 1, 0))
	store.StorePosition(100, "/tmp/b.sql", testRecord(2, 2, 0))
	store.StorePosition(200, "/tmp/c.sql", testRecord(3, 3, 0))

	waitFor(t, 2*time.Second, func() bool {
		_, ok := store.LoadPosition(200, "/tmp/c.sql")
		return ok
	})

	store.DropPositions(100)

	waitFor(t, 2*time.Second, func() bool {
		_, ok := store.LoadPosition(100, "/tmp/a.sql")
		return !ok
	})

	if _, ok := store.LoadPosition(100, "/tmp/b.sql"); ok {
		t.Error("expected all pid 100 positions dropped")
	}
	if _, ok := store.LoadPosition(200, "/tmp/c.sql"); !ok {
		t.Error("expected pid 200 position untouched")
	}
}

func TestRecordRunAndRecentRuns(t *testing.T) {
	store := openTestStore(t)

	store.RecordRun(RunRecord{
		PID: 100, Surface: 7, Identity: "/tmp/a.sql", Outcome: "applied",
		Diagnostics: 3, Highlights: 12, Duration: 40 * time.Millisecond,
	})
	store.RecordRun(RunRecord{
		PID: 100, Surface: 9, Identity: "/tmp/b.sql", Outcome: "parse-failed",
		Faults: 1, Duration: 5 * time.Millisecond,
	})

	waitFor(t, 2*time.Second, func() bool {
		return len(store.RecentRuns(10)) == 2
	})

	runs := store.RecentRuns(10)
	// Newest first.
	if runs[0].Outcome != "parse-failed" || runs[1].Outcome != "applied" {
		t.Errorf("unexpected order: %q, %q", runs[0].Outcome, runs[1].Outcome)
	}
	if runs[1].Diagnostics != 3 || runs[1].Highlights != 12 {
		t.Errorf("counters mismatch: %+v", runs[1])
	}
	if runs[1].Duration != 40*time.Millisecond {
		t.Errorf("duration mismatch: %v", runs[1].Duration)
	}
	if runs[0].Surface != 9 {
		t.Errorf("surface mismatch: %d", runs[0].Surface)
	}
	if runs[0].CompletedAt.IsZero() {
		t.Error("expected completed timestamp stamped")
	}
}

func TestRecentRunsLimit(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 5; i++ {
		store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied"})
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(store.RecentRuns(10)) == 5
	})

	if got := len(store.RecentRuns(2)); got != 2 {
		t.Errorf("expected limit 2 honored, got %d", got)
	}
}

func TestCloseFlushesPendingWrites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "flush.db")
	store, err := Open(dbPath, 30, 90)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}

	store.StorePosition(100, "/tmp/a.sql", testRecord(42, 1, 0))
	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied"})

	if err := store.Close(); err != nil {
		t.Fatalf("closing store: %v", err)
	}

	reopened, err := Open(dbPath, 30, 90)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer reopened.Close()

	if _, ok := reopened.LoadPosition(100, "/tmp/a.sql"); !ok {
		t.Error("expected position to survive close")
	}
	if len(reopened.RecentRuns(10)) != 1 {
		t.Error("expected run to survive close")
	}
}

func TestCloseRunsFinalAggregation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "agg.db")
	store, err := Open(dbPath, 30, 90)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}

	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied", Diagnostics: 2})
	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "parse-failed"})

	if err := store.Close(); err != nil {
		t.Fatalf("closing store: %v", err)
	}

	reopened, err := Open(dbPath, 30, 90)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer reopened.Close()

	var count int
	if err := reopened.db.QueryRow("SELECT COUNT(*) FROM daily_summaries").Scan(&count); err != nil {
		t.Fatalf("querying summaries: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 summary row after close, got %d", count)
	}
}

func TestWritesAfterCloseAreIgnored(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "closed.db")
	store, err := Open(dbPath, 30, 90)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("closing store: %v", err)
	}

	// Must not panic on the closed channel.
	store.StorePosition(100, "/tmp/a.sql", testRecord(1, 1, 0))
	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied"})
	store.DropPositions(100)
}
