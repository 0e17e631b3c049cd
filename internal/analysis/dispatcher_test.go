package analysis

import (
	"strings"
	"testing"

	"github.com/nixlim/sqlsidecar/internal/parse"
	"github.com/nixlim/sqlsidecar/internal/session"
)

// scriptAnalyzer is a configurable test analyzer.
type scriptAnalyzer struct {
	name    string
	active  bool
	req     Requirement
	onEnter func(rc *Run, sink *Sink, n *parse.Node)
	onExit  func(rc *Run, sink *Sink, n *parse.Node)

	entered []string
	exited  []string
	resets  int
}

func (a *scriptAnalyzer) Name() string              { return a.name }
func (a *scriptAnalyzer) Active() bool              { return a.active }
func (a *scriptAnalyzer) ExternalData() Requirement { return a.req }
func (a *scriptAnalyzer) EnterNode(rc *Run, sink *Sink, n *parse.Node) {
	a.entered = append(a.entered, n.Kind)
	if a.onEnter != nil {
		a.onEnter(rc, sink, n)
	}
}
func (a *scriptAnalyzer) ExitNode(rc *Run, sink *Sink, n *parse.Node) {
	a.exited = append(a.exited, n.Kind)
	if a.onExit != nil {
		a.onExit(rc, sink, n)
	}
}
func (a *scriptAnalyzer) Reset() { a.resets++ }

// testTree builds:
//
//	program
//	├── statement            (line 1)
//	│   └── select           (line 1)
//	│       ├── keyword_select
//	│       └── all_fields
//	└── statement            (line 4)
//	    └── drop_table       (line 4)
func testTree() *parse.Tree {
	src := []byte("SELECT *\nFROM t;\n\nDROP TABLE old_logs;\n")
	return &parse.Tree{
		Source: src,
		Root: &parse.Node{
			Kind: "program", Named: true,
			Children: []*parse.Node{
				{
					Kind: "statement", Named: true,
					Children: []*parse.Node{
						{
							Kind: "select", Named: true,
							Children: []*parse.Node{
								{Kind: "keyword_select", Span: parse.Span{Start: 0, End: 6}},
								{Kind: "all_fields", Named: true, Span: parse.Span{Start: 7, End: 8}},
							},
						},
					},
				},
				{
					Kind: "statement", Named: true, Start: parse.Point{Row: 3},
					Children: []*parse.Node{
						{Kind: "drop_table", Named: true, Start: parse.Point{Row: 3}},
					},
				},
			},
		},
	}
}

func TestDispatcherSharedTraversal(t *testing.T) {
	a := &scriptAnalyzer{name: "a", active: true}
	b := &scriptAnalyzer{name: "b", active: true}
	d := NewDispatcher(a, b)

	res := d.Run(testTree(), &Run{})

	if res.NodeCount != 7 {
		t.Errorf("expected 7 nodes visited, got %d", res.NodeCount)
	}
	if strings.Join(a.entered, ",") != strings.Join(b.entered, ",") {
		t.Errorf("analyzers saw different enter streams:\n a: %v\n b: %v", a.entered, b.entered)
	}
	if strings.Join(a.exited, ",") != strings.Join(b.exited, ",") {
		t.Errorf("analyzers saw different exit streams:\n a: %v\n b: %v", a.exited, b.exited)
	}
	if len(a.entered) != 7 || len(a.exited) != 7 {
		t.Errorf("expected 7 enter and 7 exit events, got %d/%d", len(a.entered), len(a.exited))
	}
	if a.resets != 1 || b.resets != 1 {
		t.Errorf("expected one reset each, got a=%d b=%d", a.resets, b.resets)
	}
}

func TestDispatcherFaultIsolation(t *testing.T) {
	// faulty panics midway through the tree, after having staged output
	// for earlier nodes.
	faulty := &scriptAnalyzer{
		name: "faulty", active: true,
		onEnter: func(rc *Run, sink *Sink, n *parse.Node) {
			sink.Diagnose(session.Diagnostic{Line: n.Line(), Message: "partial", Source: "faulty"})
			if n.Kind == "all_fields" {
				panic("boom")
			}
		},
	}
	steady := &scriptAnalyzer{
		name: "steady", active: true,
		onEnter: func(rc *Run, sink *Sink, n *parse.Node) {
			if n.Kind == "statement" {
				sink.Diagnose(session.Diagnostic{Line: n.Line(), Message: "stmt", Source: "steady"})
			}
		},
	}
	d := NewDispatcher(faulty, steady)

	res := d.Run(testTree(), &Run{})

	if len(res.Faults) != 1 || res.Faults[0].Analyzer != "faulty" {
		t.Fatalf("expected one fault from 'faulty', got %v", res.Faults)
	}
	for _, diag := range res.Diagnostics {
		if diag.Source == "faulty" {
			t.Errorf("faulted analyzer's partial output leaked: %+v", diag)
		}
	}
	if len(res.Diagnostics) != 2 {
		t.Fatalf("steady analyzer should contribute 2 diagnostics, got %d", len(res.Diagnostics))
	}

	// The faulted analyzer stopped receiving events; the other one saw the
	// whole tree.
	if len(steady.entered) != 7 {
		t.Errorf("steady analyzer saw %d enters, expected the full 7", len(steady.entered))
	}
	if len(faulty.entered) >= 7 {
		t.Errorf("faulted analyzer kept receiving events: %d enters", len(faulty.entered))
	}

	// Both ran, so both get a reset.
	if faulty.resets != 1 || steady.resets != 1 {
		t.Errorf("expected resets for both, got faulty=%d steady=%d", faulty.resets, steady.resets)
	}
}

type testSchema struct{ tables map[string]bool }

func (s *testSchema) HasTable(name string) bool { return s.tables[name] }
func (s *testSchema) Close() error              { return nil }

func TestDispatcherRequiredSkippedWithoutSchema(t *testing.T) {
	required := &scriptAnalyzer{name: "needs-schema", active: true, req: RequirementRequired}
	optional := &scriptAnalyzer{name: "standalone", active: true}
	d := NewDispatcher(required, optional)

	d.Run(testTree(), &Run{Schema: nil})
	if len(required.entered) != 0 {
		t.Error("required analyzer ran without schema data")
	}
	if required.resets != 0 {
		t.Error("skipped analyzer must not be reset")
	}
	if len(optional.entered) == 0 {
		t.Error("optional analyzer should have run")
	}

	d.Run(testTree(), &Run{Schema: &testSchema{}})
	if len(required.entered) == 0 {
		t.Error("required analyzer should run once schema data exists")
	}
	if required.resets != 1 {
		t.Errorf("expected 1 reset after running, got %d", required.resets)
	}
}

func TestDispatcherInactiveAndDisabledSkipped(t *testing.T) {
	inactive := &scriptAnalyzer{name: "inactive", active: false}
	disabled := &scriptAnalyzer{name: "disabled", active: true}
	running := &scriptAnalyzer{name: "running", active: true}
	d := NewDispatcher(inactive, disabled, running)

	d.Run(testTree(), &Run{Enabled: map[string]bool{"disabled": false}})

	if len(inactive.entered) != 0 || inactive.resets != 0 {
		t.Error("inactive analyzer participated")
	}
	if len(disabled.entered) != 0 || disabled.resets != 0 {
		t.Error("config-disabled analyzer participated")
	}
	if len(running.entered) == 0 {
		t.Error("enabled analyzer did not run")
	}
}

func TestDispatcherDiagnosticOrdering(t *testing.T) {
	first := &scriptAnalyzer{
		name: "first", active: true,
		onEnter: func(rc *Run, sink *Sink, n *parse.Node) {
			if n.Kind == "program" {
				sink.Diagnose(session.Diagnostic{Line: 5, Message: "first-5", Source: "first"})
				sink.Diagnose(session.Diagnostic{Line: 2, Message: "first-2", Source: "first"})
			}
		},
	}
	second := &scriptAnalyzer{
		name: "second", active: true,
		onEnter: func(rc *Run, sink *Sink, n *parse.Node) {
			if n.Kind == "program" {
				sink.Diagnose(session.Diagnostic{Line: 2, Message: "second-2", Source: "second"})
				sink.Diagnose(session.Diagnostic{Line: 5, Message: "second-5", Source: "second"})
			}
		},
	}
	d := NewDispatcher(first, second)

	res := d.Run(testTree(), &Run{})

	want := []string{"first-2", "second-2", "first-5", "second-5"}
	if len(res.Diagnostics) != len(want) {
		t.Fatalf("expected %d diagnostics, got %d", len(want), len(res.Diagnostics))
	}
	for i, w := range want {
		if res.Diagnostics[i].Message != w {
			t.Errorf("diagnostic %d: expected %q, got %q", i, w, res.Diagnostics[i].Message)
		}
	}
}

func TestDispatcherNoEligibleAnalyzers(t *testing.T) {
	d := NewDispatcher()
	res := d.Run(testTree(), &Run{})
	if !res.Empty() {
		t.Error("empty dispatcher produced output")
	}
	if res.NodeCount == 0 {
		t.Error("node count should still be reported")
	}
}
