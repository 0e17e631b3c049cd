package stats

import (
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
	"github.com/nixlim/sqlsidecar/internal/session"
)

// DashboardStats holds the aggregate view the display layer renders.
type DashboardStats struct {
	Hosts          int
	HostsValidated int
	Sessions       int
	SessionsReady  int

	Notifications uint64
	Deliveries    uint64
	// SuppressionRatio is the share of raw notifications the debounce layer
	// absorbed, 0-1.
	SuppressionRatio float64

	RunsApplied    uint64
	RunsSuperseded uint64
	ParseFailures  uint64
	AnalyzerFaults uint64

	// Run durations aggregate over the most recent completed run of every
	// live session.
	AvgRunDuration time.Duration
	P95RunDuration time.Duration

	DiagnosticsBySeverity map[session.Severity]int
	FaultsByAnalyzer      map[string]int
	SlowestSessions       []SessionRunStats
}

// SessionRunStats describes one session's latest completed analysis run.
type SessionRunStats struct {
	Handle      notify.Handle
	Identity    string
	Duration    time.Duration
	Diagnostics int
}

// CounterSnapshot is a point-in-time copy of the engine's counters.
type CounterSnapshot struct {
	Notifications uint64
	Deliveries    uint64
	Applied       uint64
	Superseded    uint64
	ParseFailures uint64
	Faults        uint64
}
