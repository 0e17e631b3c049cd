package activity

import (
	"fmt"
	"strings"
	"time"

	"github.com/nixlim/sqlsidecar/internal/analysis"
	"github.com/nixlim/sqlsidecar/internal/discovery"
	"github.com/nixlim/sqlsidecar/internal/notify"
	"github.com/nixlim/sqlsidecar/internal/session"
)

// NotificationEntry formats a raw host notification:
//
//	[pid/surface] kind identity
func NotificationEntry(n notify.Notification) Entry {
	formatted := fmt.Sprintf("[%d/%d] %s", n.PID, n.Surface, n.Kind)
	if identity := n.Payload["identity"]; identity != "" {
		formatted += " " + shortIdentity(identity)
	}
	return Entry{
		PID:       n.PID,
		Surface:   n.Surface,
		Category:  CategoryNotify,
		Formatted: formatted,
		Timestamp: n.Time,
	}
}

// AnalysisEntry formats a scheduling outcome. Applied and parse-failed runs
// carry a success marker; skips and discards are neutral.
func AnalysisEntry(o analysis.Outcome) Entry {
	e := Entry{Surface: o.Handle, Category: CategoryAnalysis}

	switch o.Kind {
	case analysis.OutcomeApplied:
		ok := true
		e.OK = &ok
		e.Formatted = fmt.Sprintf("[%d] analysis applied: %d diagnostics, %d highlights (%s)",
			o.Handle, len(o.Result.Diagnostics), len(o.Result.Highlights), formatDuration(o.Result.Duration))
	case analysis.OutcomeParseFailed:
		ok := false
		e.OK = &ok
		e.Formatted = fmt.Sprintf("[%d] analysis degraded: parse failed (%s)",
			o.Handle, formatDuration(o.Result.Duration))
	case analysis.OutcomeSuperseded:
		e.Formatted = fmt.Sprintf("[%d] analysis discarded: superseded by a newer change", o.Handle)
	case analysis.OutcomeSelectionAdopt:
		e.Formatted = fmt.Sprintf("[%d] analysis deferred: selection active", o.Handle)
	default:
		e.Formatted = fmt.Sprintf("[%d] analysis skipped: content unchanged", o.Handle)
	}
	return e
}

// DiscoveryEntry formats one discovery transition for a host candidate.
func DiscoveryEntry(c discovery.Candidate) Entry {
	e := Entry{PID: c.PID, Category: CategoryDiscovery}

	switch c.State {
	case discovery.StateSuccess:
		ok := true
		e.OK = &ok
		e.Formatted = fmt.Sprintf("[pid %d] integration surface validated (attempt %d)", c.PID, c.Attempt)
	case discovery.StateExhausted:
		ok := false
		e.OK = &ok
		e.Formatted = fmt.Sprintf("[pid %d] discovery exhausted after %d attempts", c.PID, c.Attempt)
	case discovery.StateRetrying:
		e.Formatted = fmt.Sprintf("[pid %d] probe failed; retry %d pending", c.PID, c.Attempt)
	default:
		e.Formatted = fmt.Sprintf("[pid %d] probing integration surface", c.PID)
	}
	return e
}

// SessionEntry formats a session lifecycle transition. The verb is one of
// "ready", "gone", "invalidated".
func SessionEntry(verb string, s session.Session) Entry {
	formatted := fmt.Sprintf("[%d/%d] session %s", s.PID, s.Handle, verb)
	if s.Identity != "" {
		formatted += " " + shortIdentity(s.Identity)
	}
	return Entry{
		PID:       s.PID,
		Surface:   s.Handle,
		Category:  CategorySession,
		Formatted: formatted,
	}
}

// shortIdentity reduces a document identity to its final path segment,
// truncated for display.
func shortIdentity(identity string) string {
	if i := strings.LastIndexAny(identity, `/\`); i >= 0 {
		identity = identity[i+1:]
	}
	const maxLen = 40
	if len(identity) <= maxLen {
		return identity
	}
	return identity[:maxLen-3] + "..."
}

// formatDuration renders short durations as milliseconds and everything
// else as seconds with one decimal.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return "<1ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}
