// Package stats computes aggregate statistics over the registry's session
// snapshots and the engine's counters. All computations are pure; nothing
// here mutates shared state.
package stats

import (
	"sort"
	"time"

	"github.com/nixlim/sqlsidecar/internal/session"
)

// SlowestLimit caps the per-session duration ranking.
const SlowestLimit = 10

// Compute assembles DashboardStats from registry snapshots and a counter
// snapshot. Sessions without a completed analysis run contribute only to
// the session tallies.
func Compute(hosts []session.Host, sessions []session.Session, counts CounterSnapshot) DashboardStats {
	stats := DashboardStats{
		Hosts:                 len(hosts),
		Sessions:              len(sessions),
		Notifications:         counts.Notifications,
		Deliveries:            counts.Deliveries,
		RunsApplied:           counts.Applied,
		RunsSuperseded:        counts.Superseded,
		ParseFailures:         counts.ParseFailures,
		AnalyzerFaults:        counts.Faults,
		DiagnosticsBySeverity: make(map[session.Severity]int),
		FaultsByAnalyzer:      make(map[string]int),
	}

	for _, h := range hosts {
		if h.State == session.HostValidated {
			stats.HostsValidated++
		}
	}

	var durations []float64
	for _, s := range sessions {
		if s.Initialized {
			stats.SessionsReady++
		}
		if s.Analysis == nil {
			continue
		}
		for _, d := range s.Analysis.Diagnostics {
			stats.DiagnosticsBySeverity[d.Severity]++
		}
		for _, name := range s.Analysis.Faults {
			stats.FaultsByAnalyzer[name]++
		}
		durations = append(durations, float64(s.Analysis.Duration))
		stats.SlowestSessions = append(stats.SlowestSessions, SessionRunStats{
			Handle:      s.Handle,
			Identity:    s.Identity,
			Duration:    s.Analysis.Duration,
			Diagnostics: len(s.Analysis.Diagnostics),
		})
	}

	if counts.Notifications > 0 {
		absorbed := counts.Notifications - counts.Deliveries
		if counts.Deliveries > counts.Notifications {
			absorbed = 0
		}
		stats.SuppressionRatio = float64(absorbed) / float64(counts.Notifications)
	}

	if len(durations) > 0 {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		stats.AvgRunDuration = time.Duration(sum / float64(len(durations)))
		sort.Float64s(durations)
		stats.P95RunDuration = time.Duration(percentile(durations, 0.95))
	}

	sort.Slice(stats.SlowestSessions, func(i, j int) bool {
		return stats.SlowestSessions[i].Duration > stats.SlowestSessions[j].Duration
	})
	if len(stats.SlowestSessions) > SlowestLimit {
		stats.SlowestSessions = stats.SlowestSessions[:SlowestLimit]
	}

	return stats
}

// percentile returns the p-th percentile from a sorted slice using the
// nearest-rank method. The slice must be sorted.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
