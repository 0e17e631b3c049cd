package analysis

import (
	"time"

	"github.com/nixlim/sqlsidecar/internal/session"
)

// Result is the merged output of one analysis run. Annotations and
// highlights are pushed into the editor; diagnostics stay engine-side for
// display. Buffers are append-only while the run executes and immutable
// afterwards.
type Result struct {
	Fingerprint string
	Seq         uint64

	Annotations []session.Annotation
	Highlights  []session.Highlight
	Diagnostics []session.Diagnostic

	ParseFailed bool
	ParseErr    string
	Faults      []Fault

	NodeCount int
	Duration  time.Duration
}

// Empty reports whether the run produced no output at all.
func (r *Result) Empty() bool {
	return len(r.Annotations) == 0 && len(r.Highlights) == 0 && len(r.Diagnostics) == 0
}

// Snapshot converts the result into the form stored on the session.
func (r *Result) Snapshot() session.AnalysisSnapshot {
	faults := make([]string, 0, len(r.Faults))
	for _, f := range r.Faults {
		faults = append(faults, f.Analyzer)
	}
	return session.AnalysisSnapshot{
		Fingerprint: r.Fingerprint,
		Seq:         r.Seq,
		Annotations: r.Annotations,
		Highlights:  r.Highlights,
		Diagnostics: r.Diagnostics,
		ParseFailed: r.ParseFailed,
		Faults:      faults,
		Duration:    r.Duration,
		CompletedAt: time.Now(),
	}
}
