package storage

import (
	"testing"
	"time"
)

func TestDailySummariesFromUnaggregatedRuns(t *testing.T) {
	store := openTestStore(t)

	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied", Diagnostics: 2, Duration: 10 * time.Millisecond})
	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied", Diagnostics: 1, Duration: 30 * time.Millisecond})
	store.RecordRun(RunRecord{PID: 100, Surface: 9, Outcome: "parse-failed", Faults: 1})

	waitFor(t, 2*time.Second, func() bool {
		return len(store.RecentRuns(10)) == 3
	})

	summaries := store.DailySummaries(7)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary for today, got %d", len(summaries))
	}

	s := summaries[0]
	if s.Runs != 3 || s.Applied != 2 || s.ParseFailures != 1 {
		t.Errorf("counts mismatch: %+v", s)
	}
	if s.Diagnostics != 3 || s.Faults != 1 {
		t.Errorf("totals mismatch: %+v", s)
	}
	if s.MaxDuration != 30*time.Millisecond {
		t.Errorf("max duration mismatch: %v", s.MaxDuration)
	}
}

func TestDailySummariesNoDoubleCounting(t *testing.T) {
	store := openTestStore(t)

	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied"})
	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied"})

	waitFor(t, 2*time.Second, func() bool {
		return len(store.RecentRuns(10)) == 2
	})

	// Fold today into daily_summaries; the query must then prefer the
	// aggregated row over recomputing from raw runs.
	if err := store.runDailyAggregation(); err != nil {
		t.Fatalf("aggregation: %v", err)
	}

	summaries := store.DailySummaries(7)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if summaries[0].Runs != 2 {
		t.Errorf("expected 2 runs, got %d", summaries[0].Runs)
	}
}

func TestDailySummariesRespectsWindow(t *testing.T) {
	store := openTestStore(t)

	old := time.Now().AddDate(0, 0, -30)
	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied", CompletedAt: old})
	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied"})

	waitFor(t, 2*time.Second, func() bool {
		return len(store.RecentRuns(10)) == 2
	})

	summaries := store.DailySummaries(7)
	if len(summaries) != 1 {
		t.Fatalf("expected only today's summary in a 7-day window, got %d", len(summaries))
	}

	wide := store.DailySummaries(60)
	if len(wide) != 2 {
		t.Fatalf("expected both days in a 60-day window, got %d", len(wide))
	}
	// Newest first.
	if wide[0].Date <= wide[1].Date {
		t.Errorf("expected descending dates, got %q then %q", wide[0].Date, wide[1].Date)
	}
}

func TestAggregationIdempotent(t *testing.T) {
	store := openTestStore(t)

	store.RecordRun(RunRecord{PID: 100, Surface: 7, Outcome: "applied"})
	waitFor(t, 2*time.Second, func() bool {
		return len(store.RecentRuns(10)) == 1
	})

	if err := store.runDailyAggregation(); err != nil {
		t.Fatalf("first aggregation: %v", err)
	}
	if err := store.runDailyAggregation(); err != nil {
		t.Fatalf("second aggregation: %v", err)
	}

	summaries := store.DailySummaries(7)
	if len(summaries) != 1 || summaries[0].Runs != 1 {
		t.Errorf("expected stable summary after repeated aggregation, got %+v", summaries)
	}
}
