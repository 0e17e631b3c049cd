package analyzers

import (
	"github.com/nixlim/sqlsidecar/internal/analysis"
	"github.com/nixlim/sqlsidecar/internal/parse"
	"github.com/nixlim/sqlsidecar/internal/session"
)

// SelectStar flags wildcard projections. SELECT * breaks quietly under
// schema drift and defeats covering indexes, so every occurrence gets an
// inline annotation plus a warning diagnostic.
type SelectStar struct {
	selectDepth int
}

func NewSelectStar() *SelectStar { return &SelectStar{} }

func (a *SelectStar) Name() string                       { return "select-star" }
func (a *SelectStar) Active() bool                       { return true }
func (a *SelectStar) ExternalData() analysis.Requirement { return analysis.RequirementOptional }

func (a *SelectStar) EnterNode(rc *analysis.Run, sink *analysis.Sink, n *parse.Node) {
	switch n.Kind {
	case "select":
		a.selectDepth++
	case "all_fields":
		// A bare star outside a projection (grammar error recovery) is not
		// worth reporting.
		if a.selectDepth == 0 {
			return
		}
		line := n.Line()
		sink.Annotate(session.Annotation{Line: line, Kind: "hint", Text: "wildcard projection"})
		sink.Diagnose(session.Diagnostic{
			Line:     line,
			Severity: session.SeverityWarning,
			Message:  "SELECT * fetches every column; name the columns you need",
			Source:   a.Name(),
		})
	}
}

func (a *SelectStar) ExitNode(_ *analysis.Run, _ *analysis.Sink, n *parse.Node) {
	if n.Kind == "select" {
		a.selectDepth--
	}
}

func (a *SelectStar) Reset() { a.selectDepth = 0 }
