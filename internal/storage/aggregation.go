package storage

import (
	"fmt"
)

// runDailyAggregation folds the runs table into daily_summaries, one row
// per day. Summaries for days whose raw rows are still present are fully
// recomputed, so repeated calls are idempotent; pruning removes whole days
// only, which keeps settled summaries from being recomputed short.
func (s *Store) runDailyAggregation() error {
	_, err := s.db.Exec(`
		INSERT INTO daily_summaries (date, runs, applied, parse_failures, faults, diagnostics, avg_duration_ms, max_duration_ms)
		SELECT
			date(completed_at) AS day,
			COUNT(*),
			COUNT(CASE WHEN outcome = 'applied' THEN 1 END),
			COUNT(CASE WHEN outcome = 'parse-failed' THEN 1 END),
			SUM(faults),
			SUM(diagnostics),
			AVG(duration_ms),
			MAX(duration_ms)
		FROM runs
		GROUP BY day
		ON CONFLICT(date) DO UPDATE SET
			runs = excluded.runs,
			applied = excluded.applied,
			parse_failures = excluded.parse_failures,
			faults = excluded.faults,
			diagnostics = excluded.diagnostics,
			avg_duration_ms = excluded.avg_duration_ms,
			max_duration_ms = excluded.max_duration_ms
	`)
	if err != nil {
		return fmt.Errorf("daily aggregation: %w", err)
	}

	return nil
}
