package storage

import (
	"database/sql"
	"log"
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
)

// DailySummary is one day of analysis activity, aggregated.
type DailySummary struct {
	Date          string
	Runs          int
	Applied       int
	ParseFailures int
	Faults        int
	Diagnostics   int
	AvgDuration   time.Duration
	MaxDuration   time.Duration
}

// DailySummaries returns per-day totals for the last n days, newest first.
// Days whose raw runs have not been folded into daily_summaries yet are
// computed from the runs table directly.
func (s *Store) DailySummaries(days int) []DailySummary {
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")

	rows, err := s.db.Query(`
		SELECT date, runs, applied, parse_failures, faults, diagnostics, avg_duration_ms, max_duration_ms
		FROM (
			SELECT date, runs, applied, parse_failures, faults, diagnostics, avg_duration_ms, max_duration_ms
			FROM daily_summaries
			WHERE date >= ?

			UNION ALL

			SELECT
				date(completed_at) AS date,
				COUNT(*),
				COUNT(CASE WHEN outcome = 'applied' THEN 1 END),
				COUNT(CASE WHEN outcome = 'parse-failed' THEN 1 END),
				SUM(faults),
				SUM(diagnostics),
				AVG(duration_ms),
				MAX(duration_ms)
			FROM runs
			WHERE date(completed_at) >= ?
			AND NOT EXISTS (
				SELECT 1 FROM daily_summaries ds WHERE ds.date = date(runs.completed_at)
			)
			GROUP BY date(completed_at)
		)
		ORDER BY date DESC
	`, cutoff, cutoff)
	if err != nil {
		log.Printf("ERROR: querying daily summaries: %v", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var summaries []DailySummary
	for rows.Next() {
		var ds DailySummary
		var avgMs, maxMs float64
		if err := rows.Scan(&ds.Date, &ds.Runs, &ds.Applied, &ds.ParseFailures,
			&ds.Faults, &ds.Diagnostics, &avgMs, &maxMs); err != nil {
			log.Printf("ERROR: scanning daily summary row: %v", err)
			continue
		}
		ds.AvgDuration = time.Duration(avgMs * float64(time.Millisecond))
		ds.MaxDuration = time.Duration(maxMs * float64(time.Millisecond))
		summaries = append(summaries, ds)
	}
	if err := rows.Err(); err != nil {
		log.Printf("ERROR: iterating daily summary rows: %v", err)
	}
	return summaries
}

// RecentRuns returns the newest analysis runs, most recent first.
func (s *Store) RecentRuns(limit int) []RunRecord {
	rows, err := s.db.Query(`
		SELECT pid, surface, identity, outcome, diagnostics, highlights, faults, duration_ms, completed_at
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		log.Printf("ERROR: querying recent runs: %v", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var surface int64
		var identity sql.NullString
		var durationMs float64
		var completedAt string

		if err := rows.Scan(&r.PID, &surface, &identity, &r.Outcome,
			&r.Diagnostics, &r.Highlights, &r.Faults, &durationMs, &completedAt); err != nil {
			log.Printf("ERROR: scanning run row: %v", err)
			continue
		}

		r.Surface = notify.Handle(surface)
		r.Identity = identity.String
		r.Duration = time.Duration(durationMs * float64(time.Millisecond))
		if t, err := time.Parse(time.RFC3339Nano, completedAt); err == nil {
			r.CompletedAt = t
		}

		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		log.Printf("ERROR: iterating run rows: %v", err)
	}
	return runs
}
