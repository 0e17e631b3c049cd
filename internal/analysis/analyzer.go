// Package analysis schedules incremental re-analysis of editor sessions and
// fans parse trees out to analyzer plugins. Scheduling is driven by settled
// content changes; staleness is decided by dispatch order so overlapping
// runs can never apply out of date decorations.
package analysis

import (
	"fmt"

	"github.com/nixlim/sqlsidecar/internal/parse"
	"github.com/nixlim/sqlsidecar/internal/session"
)

// Requirement states whether an analyzer can run without host-side external
// data.
type Requirement int

const (
	// RequirementOptional analyzers run with or without a schema connection.
	RequirementOptional Requirement = iota
	// RequirementRequired analyzers are skipped entirely when the host owns
	// no schema connection.
	RequirementRequired
)

// Run carries the per-run inputs analyzers may consult. Enabled overrides
// per-analyzer activation from the host's config snapshot; a missing key
// means enabled.
type Run struct {
	Source  []byte
	Kind    string
	Schema  session.SchemaConn
	Enabled map[string]bool
}

// Sink stages one analyzer's output for one run. Staging keeps a faulting
// analyzer's partial output out of the merged result without locking the
// shared buffers during traversal.
type Sink struct {
	annotations []session.Annotation
	highlights  []session.Highlight
	diagnostics []session.Diagnostic
}

// Annotate appends a margin annotation.
func (s *Sink) Annotate(a session.Annotation) {
	s.annotations = append(s.annotations, a)
}

// Highlight appends a styled span.
func (s *Sink) Highlight(h session.Highlight) {
	s.highlights = append(s.highlights, h)
}

// Diagnose appends a finding.
func (s *Sink) Diagnose(d session.Diagnostic) {
	s.diagnostics = append(s.diagnostics, d)
}

// Analyzer is a pluggable analysis pass. One instance observes one traversal
// at a time; the dispatcher serializes runs, so implementations need no
// internal locking as long as state lives on the instance and Reset clears
// it.
type Analyzer interface {
	// Name identifies the analyzer in diagnostics and config.
	Name() string

	// Active reports whether the analyzer wants to run at all.
	Active() bool

	// ExternalData declares whether the analyzer needs host-side data.
	ExternalData() Requirement

	// EnterNode observes a node on the way down the shared traversal.
	EnterNode(rc *Run, sink *Sink, n *parse.Node)

	// ExitNode observes a node on the way back up.
	ExitNode(rc *Run, sink *Sink, n *parse.Node)

	// Reset clears accumulated state. The dispatcher calls it after every
	// run the analyzer took part in, fault or not.
	Reset()
}

// Fault records an analyzer panic recovered during a run.
type Fault struct {
	Analyzer string
	Reason   string
}

// Error implements error.
func (f Fault) Error() string {
	return fmt.Sprintf("analyzer %s faulted: %s", f.Analyzer, f.Reason)
}
