package analyzers

import (
	"fmt"

	"github.com/nixlim/sqlsidecar/internal/analysis"
	"github.com/nixlim/sqlsidecar/internal/parse"
	"github.com/nixlim/sqlsidecar/internal/session"
)

// SchemaCheck verifies table references against the host's attached schema.
// It declares a hard requirement on external data, so the dispatcher skips
// it entirely when no schema connection is available.
//
// Tables the script itself creates count as known for the rest of the run,
// which keeps migration scripts quiet.
type SchemaCheck struct {
	defining bool
	created  map[string]bool
	reported map[string]bool
}

func NewSchemaCheck() *SchemaCheck {
	return &SchemaCheck{
		created:  make(map[string]bool),
		reported: make(map[string]bool),
	}
}

func (a *SchemaCheck) Name() string                       { return "schema-check" }
func (a *SchemaCheck) Active() bool                       { return true }
func (a *SchemaCheck) ExternalData() analysis.Requirement { return analysis.RequirementRequired }

func (a *SchemaCheck) EnterNode(rc *analysis.Run, sink *analysis.Sink, n *parse.Node) {
	switch n.Kind {
	case "create_table", "create_view":
		// The first object_reference under these nodes names the object
		// being defined; everything after it is a real reference again.
		a.defining = true
	case "object_reference":
		name := normalizeIdentifier(n.Text(rc.Source))
		if name == "" {
			return
		}
		if a.defining {
			a.created[name] = true
			a.defining = false
			return
		}
		if a.created[name] || a.reported[name] || rc.Schema.HasTable(name) {
			return
		}
		a.reported[name] = true
		sink.Diagnose(session.Diagnostic{
			Line:     n.Line(),
			Severity: session.SeverityError,
			Message:  fmt.Sprintf("table %q not found in the attached schema", name),
			Source:   a.Name(),
		})
	}
}

func (a *SchemaCheck) ExitNode(_ *analysis.Run, _ *analysis.Sink, n *parse.Node) {
	switch n.Kind {
	case "create_table", "create_view":
		// Error recovery can leave a definition without a name.
		a.defining = false
	}
}

func (a *SchemaCheck) Reset() {
	a.defining = false
	a.created = make(map[string]bool)
	a.reported = make(map[string]bool)
}
