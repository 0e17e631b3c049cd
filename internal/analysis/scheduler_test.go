package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
	"github.com/nixlim/sqlsidecar/internal/parse"
	"github.com/nixlim/sqlsidecar/internal/session"
)

const testSurface notify.Handle = 7

// schedSessions is an in-memory stand-in for the registry slice the
// scheduler consumes.
type schedSessions struct {
	mu       sync.Mutex
	sessions map[notify.Handle]session.Session
	hosts    map[int]session.Host
	schemas  map[int]session.SchemaConn
}

func (f *schedSessions) SessionByHandle(h notify.Handle) (session.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[h]
	return s, ok
}

func (f *schedSessions) HostByPID(pid int) (session.Host, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hosts[pid]
	return h, ok
}

func (f *schedSessions) Schema(pid int) session.SchemaConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schemas[pid]
}

func (f *schedSessions) SetFingerprint(h notify.Handle, fp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[h]
	if !ok {
		return session.ErrSessionInvalid
	}
	s.Fingerprint = fp
	f.sessions[h] = s
	return nil
}

func (f *schedSessions) SetAnalysis(h notify.Handle, snap session.AnalysisSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[h]
	if !ok {
		return session.ErrSessionInvalid
	}
	s.Fingerprint = snap.Fingerprint
	s.Analysis = &snap
	f.sessions[h] = s
	return nil
}

// schedDecorator scripts the host-side answers and records decoration calls.
type schedDecorator struct {
	mu        sync.Mutex
	fp        string
	text      string
	selection bool

	annCalls [][]session.Annotation
	hlCalls  [][]session.Highlight
	clears   int
}

func (d *schedDecorator) script(fp, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fp, d.text = fp, text
}

func (d *schedDecorator) Initialize(notify.Handle) error { return nil }
func (d *schedDecorator) Release(notify.Handle) error    { return nil }
func (d *schedDecorator) ContentFingerprint(notify.Handle) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fp, nil
}
func (d *schedDecorator) Text(notify.Handle) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text, nil
}
func (d *schedDecorator) Identity(notify.Handle) (string, error) { return "", nil }
func (d *schedDecorator) SelectionNonEmpty(notify.Handle) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selection, nil
}
func (d *schedDecorator) Valid(notify.Handle) bool { return true }
func (d *schedDecorator) SetAnnotations(_ notify.Handle, anns []session.Annotation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.annCalls = append(d.annCalls, anns)
	return nil
}
func (d *schedDecorator) SetHighlights(_ notify.Handle, hls []session.Highlight) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hlCalls = append(d.hlCalls, hls)
	return nil
}
func (d *schedDecorator) ClearAnnotations(notify.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears++
	return nil
}
func (d *schedDecorator) clearCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clears
}
func (d *schedDecorator) ViewState(notify.Handle) (session.ViewState, error) {
	return session.ViewState{}, nil
}
func (d *schedDecorator) RestoreViewState(notify.Handle, session.ViewState) error { return nil }
func (d *schedDecorator) FoldState(notify.Handle) (session.FoldState, error) {
	return session.FoldState{}, nil
}
func (d *schedDecorator) RestoreFoldState(notify.Handle, session.FoldState) error { return nil }
func (d *schedDecorator) Reveal(notify.Handle, int) error                         { return nil }

// gateParser parses instantly unless a gate channel is registered for the
// exact source text, in which case it blocks until the gate closes.
type gateParser struct {
	mu    sync.Mutex
	calls int
	gates map[string]chan struct{}
	fail  map[string]error
}

func newGateParser() *gateParser {
	return &gateParser{gates: make(map[string]chan struct{}), fail: make(map[string]error)}
}

func (p *gateParser) Parse(_ context.Context, src []byte) (*parse.Tree, error) {
	p.mu.Lock()
	p.calls++
	gate := p.gates[string(src)]
	err := p.fail[string(src)]
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &parse.Tree{Source: src, Root: &parse.Node{Kind: "program", Named: true}}, nil
}

func (p *gateParser) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// inlineExec applies results on the calling goroutine. Ordering across
// surfaces does not matter for these tests.
type inlineExec struct{}

func (inlineExec) Post(_ notify.Handle, fn func()) { fn() }

func newSchedFixture(analyzers ...Analyzer) (*Scheduler, *schedSessions, *schedDecorator, *gateParser, chan Outcome) {
	fs := &schedSessions{
		sessions: map[notify.Handle]session.Session{
			testSurface: {Handle: testSurface, PID: 100, Kind: "sql", Initialized: true},
		},
		hosts: map[int]session.Host{
			100: {PID: 100, State: session.HostValidated, Config: session.HostConfig{Kinds: []string{"sql"}}},
		},
		schemas: make(map[int]session.SchemaConn),
	}
	dec := &schedDecorator{}
	p := newGateParser()
	outcomes := make(chan Outcome, 16)
	sched := NewScheduler(fs, dec, p, NewDispatcher(analyzers...), inlineExec{},
		WithOutcomeFunc(func(o Outcome) { outcomes <- o }))
	return sched, fs, dec, p, outcomes
}

func waitOutcome(t *testing.T, ch chan Outcome, want OutcomeKind) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		if o.Kind != want {
			t.Fatalf("expected outcome %v, got %v", want, o.Kind)
		}
		return o
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outcome %v", want)
		return Outcome{}
	}
}

func TestSchedulerUnchangedFingerprintIsNoOp(t *testing.T) {
	sched, fs, dec, p, outcomes := newSchedFixture()
	fs.mu.Lock()
	s := fs.sessions[testSurface]
	s.Fingerprint = "h1"
	fs.sessions[testSurface] = s
	fs.mu.Unlock()
	dec.script("h1", "SELECT 1")

	sched.OnContentSettled(testSurface)

	waitOutcome(t, outcomes, OutcomeUnchanged)
	if p.callCount() != 0 {
		t.Errorf("parser ran %d times for an unchanged fingerprint", p.callCount())
	}
}

func TestSchedulerEmptyFingerprintAlwaysRuns(t *testing.T) {
	sched, _, dec, p, outcomes := newSchedFixture()
	dec.script("", "SELECT 1")

	sched.OnContentSettled(testSurface)

	waitOutcome(t, outcomes, OutcomeApplied)
	if p.callCount() != 1 {
		t.Errorf("expected 1 parse for unknown fingerprint, got %d", p.callCount())
	}
}

func TestSchedulerSelectionAdoptsFingerprint(t *testing.T) {
	sched, fs, dec, p, outcomes := newSchedFixture()
	dec.script("h9", "SELECT 1")
	dec.mu.Lock()
	dec.selection = true
	dec.mu.Unlock()

	sched.OnContentSettled(testSurface)

	waitOutcome(t, outcomes, OutcomeSelectionAdopt)
	if p.callCount() != 0 {
		t.Error("selection must suppress analysis entirely")
	}
	if s, _ := fs.SessionByHandle(testSurface); s.Fingerprint != "h9" {
		t.Errorf("fingerprint not adopted under selection: %q", s.Fingerprint)
	}
}

func TestSchedulerAppliesDecorations(t *testing.T) {
	emitter := &scriptAnalyzer{
		name: "emitter", active: true,
		onEnter: func(rc *Run, sink *Sink, n *parse.Node) {
			sink.Highlight(session.Highlight{Start: 0, End: 6, Style: "keyword"})
			sink.Diagnose(session.Diagnostic{Line: 4, Severity: session.SeverityWarning, Message: "drop in script", Source: "emitter"})
		},
	}
	sched, fs, dec, _, outcomes := newSchedFixture(emitter)
	dec.script("h1", "SELECT 1")

	sched.OnContentSettled(testSurface)

	out := waitOutcome(t, outcomes, OutcomeApplied)
	if out.Result == nil || len(out.Result.Highlights) != 1 || len(out.Result.Diagnostics) != 1 {
		t.Fatalf("unexpected result payload: %+v", out.Result)
	}

	dec.mu.Lock()
	hlCalls := len(dec.hlCalls)
	annCalls := len(dec.annCalls)
	dec.mu.Unlock()
	if hlCalls != 1 || annCalls != 1 {
		t.Errorf("expected one highlight and one annotation application, got %d/%d", hlCalls, annCalls)
	}

	s, _ := fs.SessionByHandle(testSurface)
	if s.Fingerprint != "h1" {
		t.Errorf("session fingerprint not adopted: %q", s.Fingerprint)
	}
	if s.Analysis == nil || len(s.Analysis.Diagnostics) != 1 || s.Analysis.Diagnostics[0].Line != 4 {
		t.Errorf("analysis snapshot not recorded: %+v", s.Analysis)
	}
}

func TestSchedulerLaterDispatchWins(t *testing.T) {
	sched, fs, dec, p, outcomes := newSchedFixture()

	// The first run blocks in the parser; the second sails through.
	gate := make(chan struct{})
	p.mu.Lock()
	p.gates["SELECT 1"] = gate
	p.mu.Unlock()

	dec.script("h1", "SELECT 1")
	sched.OnContentSettled(testSurface)

	dec.script("h2", "SELECT 2")
	sched.OnContentSettled(testSurface)

	// The newer dispatch completes first and is applied.
	waitOutcome(t, outcomes, OutcomeApplied)
	if s, _ := fs.SessionByHandle(testSurface); s.Fingerprint != "h2" {
		t.Fatalf("expected newest fingerprint h2, got %q", s.Fingerprint)
	}

	// The older run finishes afterwards and must be discarded even though
	// nothing newer completed since.
	close(gate)
	waitOutcome(t, outcomes, OutcomeSuperseded)

	s, _ := fs.SessionByHandle(testSurface)
	if s.Fingerprint != "h2" {
		t.Errorf("stale run overwrote the session: fingerprint %q", s.Fingerprint)
	}
	if s.Analysis == nil || s.Analysis.Seq != 2 {
		t.Errorf("expected snapshot from dispatch 2, got %+v", s.Analysis)
	}
}

func TestSchedulerParseFailureDegradesOnce(t *testing.T) {
	sched, fs, dec, p, outcomes := newSchedFixture()
	p.mu.Lock()
	p.fail["BROKEN ("] = errors.New("unexpected token")
	p.mu.Unlock()
	dec.script("h1", "BROKEN (")

	sched.OnContentSettled(testSurface)

	out := waitOutcome(t, outcomes, OutcomeParseFailed)
	if out.Result == nil || !out.Result.ParseFailed || !out.Result.Empty() {
		t.Fatalf("expected empty parse-failed result, got %+v", out.Result)
	}
	if dec.clearCount() != 1 {
		t.Errorf("expected stale decorations cleared once, got %d", dec.clearCount())
	}
	s, _ := fs.SessionByHandle(testSurface)
	if s.Fingerprint != "h1" {
		t.Errorf("fingerprint must be adopted on parse failure, got %q", s.Fingerprint)
	}
	if s.Analysis == nil || !s.Analysis.ParseFailed {
		t.Errorf("snapshot should record the failure: %+v", s.Analysis)
	}

	// Settling again on identical content must not retry the parse.
	sched.OnContentSettled(testSurface)
	waitOutcome(t, outcomes, OutcomeUnchanged)
	if p.callCount() != 1 {
		t.Errorf("parse retried on unchanged content: %d calls", p.callCount())
	}
}

func TestSchedulerSkipsUnanalyzedKind(t *testing.T) {
	sched, fs, dec, p, outcomes := newSchedFixture()
	fs.mu.Lock()
	s := fs.sessions[testSurface]
	s.Kind = "txt"
	fs.sessions[testSurface] = s
	fs.mu.Unlock()
	dec.script("h1", "plain text")

	sched.OnContentSettled(testSurface)

	if p.callCount() != 0 {
		t.Error("parser ran for a kind the host does not analyze")
	}
	select {
	case o := <-outcomes:
		t.Errorf("unexpected outcome %v", o.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSchedulerUnknownSurfaceIgnored(t *testing.T) {
	sched, _, dec, p, _ := newSchedFixture()
	dec.script("h1", "SELECT 1")

	sched.OnContentSettled(notify.Handle(999))

	if p.callCount() != 0 {
		t.Error("parser ran for an unknown surface")
	}
}

func TestSchedulerForgetStalesInFlightRun(t *testing.T) {
	sched, _, dec, p, outcomes := newSchedFixture()
	gate := make(chan struct{})
	p.mu.Lock()
	p.gates["SELECT 1"] = gate
	p.mu.Unlock()
	dec.script("h1", "SELECT 1")

	sched.OnContentSettled(testSurface)
	sched.Forget(testSurface)
	close(gate)

	waitOutcome(t, outcomes, OutcomeSuperseded)
	dec.mu.Lock()
	applied := len(dec.annCalls) + len(dec.hlCalls)
	dec.mu.Unlock()
	if applied != 0 {
		t.Error("forgotten surface still received decorations")
	}
}
