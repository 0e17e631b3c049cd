package stats

import (
	"sync/atomic"

	"github.com/nixlim/sqlsidecar/internal/analysis"
)

// Counters accumulates engine-side tallies. All methods are safe for
// concurrent use; the engine bumps them on its hot paths, so everything is
// a single atomic add.
type Counters struct {
	notifications atomic.Uint64
	deliveries    atomic.Uint64
	applied       atomic.Uint64
	superseded    atomic.Uint64
	parseFailures atomic.Uint64
	faults        atomic.Uint64
}

// NoteNotification counts one raw host notification.
func (c *Counters) NoteNotification() { c.notifications.Add(1) }

// NoteDelivery counts one debounced delivery reaching a handler.
func (c *Counters) NoteDelivery() { c.deliveries.Add(1) }

// NoteOutcome counts a scheduling outcome and any analyzer faults it
// carried.
func (c *Counters) NoteOutcome(o analysis.Outcome) {
	switch o.Kind {
	case analysis.OutcomeApplied:
		c.applied.Add(1)
	case analysis.OutcomeSuperseded:
		c.superseded.Add(1)
	case analysis.OutcomeParseFailed:
		c.parseFailures.Add(1)
	}
	if o.Result != nil && len(o.Result.Faults) > 0 {
		c.faults.Add(uint64(len(o.Result.Faults)))
	}
}

// Snapshot copies the current values.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Notifications: c.notifications.Load(),
		Deliveries:    c.deliveries.Load(),
		Applied:       c.applied.Load(),
		Superseded:    c.superseded.Load(),
		ParseFailures: c.parseFailures.Load(),
		Faults:        c.faults.Load(),
	}
}
