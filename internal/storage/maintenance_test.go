package storage

import (
	"testing"
	"time"
)

func TestMaintenancePrunesOldRuns(t *testing.T) {
	store := openTestStore(t)

	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied",
		CompletedAt: time.Now().AddDate(0, 0, -100)})
	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied"})

	waitFor(t, 2*time.Second, func() bool {
		return len(store.RecentRuns(10)) == 2
	})

	if err := store.runMaintenanceCycle(30, 90); err != nil {
		t.Fatalf("maintenance cycle: %v", err)
	}

	runs := store.RecentRuns(10)
	if len(runs) != 1 {
		t.Fatalf("expected old run pruned, got %d runs", len(runs))
	}
}

func TestMaintenanceAggregatesBeforePruning(t *testing.T) {
	store := openTestStore(t)

	// Old enough to be pruned from runs but young enough for its summary to
	// survive.
	old := time.Now().AddDate(0, 0, -45)
	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied",
		Diagnostics: 5, CompletedAt: old})

	waitFor(t, 2*time.Second, func() bool {
		return len(store.RecentRuns(10)) == 1
	})

	if err := store.runMaintenanceCycle(30, 90); err != nil {
		t.Fatalf("maintenance cycle: %v", err)
	}

	if got := len(store.RecentRuns(10)); got != 0 {
		t.Fatalf("expected raw run pruned, got %d", got)
	}

	summaries := store.DailySummaries(60)
	if len(summaries) != 1 {
		t.Fatalf("expected summary to survive run pruning, got %d", len(summaries))
	}
	if summaries[0].Runs != 1 || summaries[0].Diagnostics != 5 {
		t.Errorf("summary mismatch: %+v", summaries[0])
	}
}

func TestMaintenancePrunesStalePositions(t *testing.T) {
	store := openTestStore(t)

	store.StorePosition(100, "/tmp/stale.sql", testRecord(1, 1, 0))
	waitFor(t, 2*time.Second, func() bool {
		_, ok := store.LoadPosition(100, "/tmp/stale.sql")
		return ok
	})

	// Backdate the row past the summary retention window.
	if _, err := store.db.Exec(
		"UPDATE positions SET saved_at = ? WHERE pid = 100",
		time.Now().AddDate(0, 0, -120).UTC().Format(time.RFC3339Nano),
	); err != nil {
		t.Fatalf("backdating position: %v", err)
	}

	if err := store.runMaintenanceCycle(30, 90); err != nil {
		t.Fatalf("maintenance cycle: %v", err)
	}

	if _, ok := store.LoadPosition(100, "/tmp/stale.sql"); ok {
		t.Error("expected stale position pruned")
	}
}

func TestMaintenancePrunesOldSummaries(t *testing.T) {
	store := openTestStore(t)

	oldDate := time.Now().AddDate(0, 0, -200).Format("2006-01-02")
	if _, err := store.db.Exec(
		"INSERT INTO daily_summaries (date, runs) VALUES (?, 3)", oldDate,
	); err != nil {
		t.Fatalf("seeding old summary: %v", err)
	}

	if err := store.runMaintenanceCycle(30, 90); err != nil {
		t.Fatalf("maintenance cycle: %v", err)
	}

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM daily_summaries").Scan(&count); err != nil {
		t.Fatalf("counting summaries: %v", err)
	}
	if count != 0 {
		t.Errorf("expected old summary pruned, got %d rows", count)
	}
}
