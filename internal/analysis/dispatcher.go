package analysis

import (
	"fmt"
	"log"
	"sort"

	"github.com/nixlim/sqlsidecar/internal/parse"
)

// Dispatcher fans one shared tree traversal out to every eligible analyzer.
// Analyzers are invoked in activation order (registration order) at each
// node; a panic in one analyzer removes it from the rest of the run and
// discards its staged output, leaving the others untouched.
type Dispatcher struct {
	analyzers []Analyzer
}

// NewDispatcher registers analyzers in activation order.
func NewDispatcher(analyzers ...Analyzer) *Dispatcher {
	return &Dispatcher{analyzers: analyzers}
}

// Names returns the registered analyzer names in activation order.
func (d *Dispatcher) Names() []string {
	out := make([]string, 0, len(d.analyzers))
	for _, a := range d.analyzers {
		out = append(out, a.Name())
	}
	return out
}

// runState is a single analyzer's participation in one run.
type runState struct {
	analyzer Analyzer
	sink     *Sink
	faulted  bool
	fault    Fault
}

// Run walks the tree once, feeding every eligible analyzer the same
// enter/exit stream, then merges staged output. Analyzers declaring
// RequirementRequired are skipped (not even Reset) when rc.Schema is nil.
// Merged diagnostics are ordered by ascending line, activation order within
// a line.
func (d *Dispatcher) Run(tree *parse.Tree, rc *Run) *Result {
	res := &Result{}

	states := make([]*runState, 0, len(d.analyzers))
	for _, a := range d.analyzers {
		if !a.Active() {
			continue
		}
		if rc.Enabled != nil {
			if on, ok := rc.Enabled[a.Name()]; ok && !on {
				continue
			}
		}
		if a.ExternalData() == RequirementRequired && rc.Schema == nil {
			continue
		}
		states = append(states, &runState{analyzer: a, sink: &Sink{}})
	}
	if len(states) == 0 {
		res.NodeCount = tree.Count()
		return res
	}

	tree.Walk(
		func(n *parse.Node) {
			res.NodeCount++
			for _, st := range states {
				if st.faulted {
					continue
				}
				d.safeVisit(st, rc, n, true)
			}
		},
		func(n *parse.Node) {
			for _, st := range states {
				if st.faulted {
					continue
				}
				d.safeVisit(st, rc, n, false)
			}
		},
	)

	// Merge in activation order; faulted analyzers contribute nothing.
	for _, st := range states {
		if st.faulted {
			res.Faults = append(res.Faults, st.fault)
			continue
		}
		res.Annotations = append(res.Annotations, st.sink.annotations...)
		res.Highlights = append(res.Highlights, st.sink.highlights...)
		res.Diagnostics = append(res.Diagnostics, st.sink.diagnostics...)
	}
	sort.SliceStable(res.Diagnostics, func(i, j int) bool {
		return res.Diagnostics[i].Line < res.Diagnostics[j].Line
	})

	// Every analyzer that ran gets a reset, fault or not.
	for _, st := range states {
		d.safeReset(st)
	}

	return res
}

// safeVisit runs one analyzer callback with panic isolation.
func (d *Dispatcher) safeVisit(st *runState, rc *Run, n *parse.Node, enter bool) {
	defer func() {
		if r := recover(); r != nil {
			st.faulted = true
			st.fault = Fault{Analyzer: st.analyzer.Name(), Reason: fmt.Sprint(r)}
			log.Printf("ERROR: %v", st.fault)
		}
	}()
	if enter {
		st.analyzer.EnterNode(rc, st.sink, n)
	} else {
		st.analyzer.ExitNode(rc, st.sink, n)
	}
}

// safeReset guards Reset the same way; a panicking Reset is logged but does
// not disturb the merged result.
func (d *Dispatcher) safeReset(st *runState) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: analyzer %s panicked in Reset: %v", st.analyzer.Name(), r)
		}
	}()
	st.analyzer.Reset()
}
