package storage

import (
	"context"
	"fmt"
	"log"
	"time"
)

const (
	maintenanceInterval = 1 * time.Hour
	vacuumInterval      = 7 * 24 * time.Hour
)

func (s *Store) startMaintenance(ctx context.Context, retentionDays, summaryRetentionDays int) {
	go s.maintenanceLoop(ctx, retentionDays, summaryRetentionDays)
}

func (s *Store) maintenanceLoop(ctx context.Context, retentionDays, summaryRetentionDays int) {
	defer close(s.maintenanceDone)

	lastVacuum := time.Now()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runMaintenanceCycle(retentionDays, summaryRetentionDays); err != nil {
				log.Printf("ERROR: maintenance cycle failed: %v", err)
			}

			if time.Since(lastVacuum) >= vacuumInterval {
				if _, err := s.db.Exec("VACUUM"); err != nil {
					log.Printf("ERROR: VACUUM failed: %v", err)
				} else {
					lastVacuum = time.Now()
				}
			}
		}
	}
}

func (s *Store) runMaintenanceCycle(retentionDays, summaryRetentionDays int) error {
	// Aggregate before pruning so summaries never lose days.
	if err := s.runDailyAggregation(); err != nil {
		return err
	}

	retentionModifier := fmt.Sprintf("-%d days", retentionDays)
	summaryModifier := fmt.Sprintf("-%d days", summaryRetentionDays)

	// Raw runs are pruned at whole-day granularity; a partially pruned day
	// would make the next aggregation pass recompute it short.
	_, err := s.db.Exec("DELETE FROM runs WHERE date(completed_at) < date('now', ?)", retentionModifier)
	if err != nil {
		return fmt.Errorf("pruning old runs: %w", err)
	}

	// Positions age out with the summaries, not the raw runs. They are the
	// user-visible payoff of the store and stay useful far longer.
	_, err = s.db.Exec("DELETE FROM positions WHERE datetime(saved_at) < datetime('now', ?)", summaryModifier)
	if err != nil {
		return fmt.Errorf("pruning stale positions: %w", err)
	}

	_, err = s.db.Exec("DELETE FROM daily_summaries WHERE date < date('now', ?)", summaryModifier)
	if err != nil {
		return fmt.Errorf("pruning old summaries: %w", err)
	}

	return nil
}
