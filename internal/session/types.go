// Package session holds the data model for observed host processes and
// editor sessions, the registry that owns them, and the decorator contract
// through which the engine touches the host's editors.
package session

import (
	"sync"
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
)

// HostState tracks how far discovery has taken a host process.
type HostState int

const (
	// HostPending means the process was sighted but its integration surface
	// has not been located yet.
	HostPending HostState = iota
	// HostValidated means the integration surface answered a probe and
	// sessions may be created.
	HostValidated
	// HostExhausted means discovery gave up on this process for the rest of
	// its lifetime.
	HostExhausted
)

// String returns a display name for the state.
func (s HostState) String() string {
	switch s {
	case HostPending:
		return "pending"
	case HostValidated:
		return "validated"
	case HostExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// HostConfig is the analysis configuration snapshot taken when a host is
// validated. Later config changes do not retroactively apply to a live host.
type HostConfig struct {
	// Kinds lists the document-kind tags eligible for analysis.
	Kinds []string
	// Analyzers maps analyzer name to enabled.
	Analyzers map[string]bool
}

// AnalyzesKind reports whether the snapshot allows scheduling for a kind.
func (c HostConfig) AnalyzesKind(kind string) bool {
	for _, k := range c.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// SchemaConn is an opaque handle to schema metadata a host may own. The
// engine never opens database connections itself; whichever collaborator
// provides one hands it over and the registry owns it exclusively until the
// host goes away.
type SchemaConn interface {
	// HasTable reports whether the connected catalog knows the table.
	HasTable(name string) bool
	// Close releases the underlying resources.
	Close() error
}

// Host is an observed host process. A host starts Pending and carries
// sessions only once Validated.
type Host struct {
	PID         int
	MainWindow  notify.Handle
	Services    uint64
	State       HostState
	Config      HostConfig
	FirstSeen   time.Time
	ValidatedAt time.Time

	schema SchemaConn

	// pendingSave is the single outstanding save announcement for this
	// host, written by notification handling and consumed by the debounced
	// save handler. It has its own lock so neither path takes the registry
	// lock just to touch it.
	saveMu      sync.Mutex
	pendingSave notify.Handle
}

// ViewState is a cursor/scroll snapshot for one editor surface. Lines are
// one-based; zero values mean unknown.
type ViewState struct {
	Line      int
	Column    int
	ScrollTop int
}

// IsZero reports whether the snapshot carries no position.
func (v ViewState) IsZero() bool {
	return v.Line == 0 && v.Column == 0 && v.ScrollTop == 0
}

// LineRange is an inclusive range of one-based lines.
type LineRange struct {
	First int
	Last  int
}

// FoldState records which regions of a document are collapsed.
type FoldState struct {
	Collapsed []LineRange
}

// IsZero reports whether no folds are recorded.
func (f FoldState) IsZero() bool {
	return len(f.Collapsed) == 0
}

// Severity ranks a diagnostic.
type Severity int

const (
	SeverityHint Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

// String returns a display name for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityHint:
		return "hint"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Annotation is an inline margin note pushed into the editor.
type Annotation struct {
	Line int
	Kind string
	Text string
}

// Highlight is a styled byte span pushed into the editor.
type Highlight struct {
	Start uint32
	End   uint32
	Style string
}

// Diagnostic is one analyzer finding. Diagnostics are surfaced through the
// engine's own consumers rather than pushed into the editor.
type Diagnostic struct {
	Line     int
	Severity Severity
	Message  string
	Source   string
}

// AnalysisSnapshot is the outcome of the most recent analysis run applied to
// a session.
type AnalysisSnapshot struct {
	Fingerprint string
	Seq         uint64
	Annotations []Annotation
	Highlights  []Highlight
	Diagnostics []Diagnostic
	ParseFailed bool
	Faults      []string
	Duration    time.Duration
	CompletedAt time.Time
}

// Session is one live editor surface inside a validated host. Values handed
// out by the registry are deep copies; all mutation goes through registry
// methods.
type Session struct {
	Handle       notify.Handle
	PID          int
	Identity     string
	Kind         string
	Fingerprint  string
	View         ViewState
	Folds        FoldState
	Initialized  bool
	CreatedAt    time.Time
	LastActivity time.Time
	Analysis     *AnalysisSnapshot

	initializing bool
}
