package analysis

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
	"github.com/nixlim/sqlsidecar/internal/parse"
	"github.com/nixlim/sqlsidecar/internal/session"
)

// ErrParseFailed tags parser errors in logs. The scheduler degrades a failed
// parse to an empty result; it never retries on its own.
var ErrParseFailed = errors.New("parse failed")

// Sessions is the slice of the registry the scheduler needs.
type Sessions interface {
	SessionByHandle(h notify.Handle) (session.Session, bool)
	HostByPID(pid int) (session.Host, bool)
	Schema(pid int) session.SchemaConn
	SetFingerprint(h notify.Handle, fp string) error
	SetAnalysis(h notify.Handle, snap session.AnalysisSnapshot) error
}

// Executor marshals a function onto a surface's serial consumer context.
// The debounce coordinator provides this in production.
type Executor interface {
	Post(surface notify.Handle, fn func())
}

// OutcomeKind classifies what a content-settled event turned into.
type OutcomeKind int

const (
	// OutcomeUnchanged means the fingerprint matched and nothing ran.
	OutcomeUnchanged OutcomeKind = iota
	// OutcomeSelectionAdopt means a live selection suppressed re-analysis
	// and the new fingerprint was adopted as is.
	OutcomeSelectionAdopt
	// OutcomeApplied means a run completed and its decorations were applied.
	OutcomeApplied
	// OutcomeParseFailed means an empty result was applied after a parse
	// failure.
	OutcomeParseFailed
	// OutcomeSuperseded means a completed run was discarded because a newer
	// request had been dispatched for the session.
	OutcomeSuperseded
)

// String returns a display name for the outcome.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeSelectionAdopt:
		return "selection-adopt"
	case OutcomeApplied:
		return "applied"
	case OutcomeParseFailed:
		return "parse-failed"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Outcome reports one scheduling decision to the engine.
type Outcome struct {
	Handle notify.Handle
	Kind   OutcomeKind
	Result *Result
}

// request is one dispatched analysis run.
type request struct {
	handle      notify.Handle
	seq         uint64
	fingerprint string
	source      []byte
	kind        string
	schema      session.SchemaConn
	enabled     map[string]bool
}

// Scheduler turns settled content changes into analysis runs. Fingerprint
// comparison makes unchanged content free; a per-session dispatch sequence
// makes sure only the newest dispatched run ever applies, regardless of
// completion order. Runs execute on their own goroutine and marshal back
// through the executor before touching the editor.
type Scheduler struct {
	sessions     Sessions
	decorator    session.Decorator
	parser       parse.Parser
	dispatcher   *Dispatcher
	exec         Executor
	parseTimeout time.Duration
	onOutcome    func(Outcome)

	mu         sync.Mutex
	dispatched map[notify.Handle]uint64
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithParseTimeout bounds a single parse. Zero means no bound.
func WithParseTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.parseTimeout = d }
}

// WithOutcomeFunc registers a callback invoked for every scheduling
// decision. It runs on scheduler goroutines and must not block.
func WithOutcomeFunc(fn func(Outcome)) SchedulerOption {
	return func(s *Scheduler) { s.onOutcome = fn }
}

// NewScheduler wires a scheduler.
func NewScheduler(sessions Sessions, dec session.Decorator, parser parse.Parser, dispatcher *Dispatcher, exec Executor, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		sessions:   sessions,
		decorator:  dec,
		parser:     parser,
		dispatcher: dispatcher,
		exec:       exec,
		dispatched: make(map[notify.Handle]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnContentSettled runs the scheduling pipeline for a surface whose content
// burst just went quiet. Intended to run on the surface's consumer context.
func (s *Scheduler) OnContentSettled(h notify.Handle) {
	sess, ok := s.sessions.SessionByHandle(h)
	if !ok {
		return
	}
	host, ok := s.sessions.HostByPID(sess.PID)
	if !ok {
		return
	}
	if !host.Config.AnalyzesKind(sess.Kind) {
		return
	}

	fp, err := s.decorator.ContentFingerprint(h)
	if err != nil {
		log.Printf("WARNING: fingerprint for surface %d: %v", h, err)
		return
	}
	if fp != "" && fp == sess.Fingerprint {
		s.emit(Outcome{Handle: h, Kind: OutcomeUnchanged})
		return
	}

	// A live selection means the user is pointing at something, often an
	// error span a tool just highlighted. Adopt the fingerprint and leave
	// the editor alone.
	if nonEmpty, selErr := s.decorator.SelectionNonEmpty(h); selErr == nil && nonEmpty {
		if err := s.sessions.SetFingerprint(h, fp); err == nil {
			s.emit(Outcome{Handle: h, Kind: OutcomeSelectionAdopt})
		}
		return
	}

	text, err := s.decorator.Text(h)
	if err != nil {
		log.Printf("WARNING: text snapshot for surface %d: %v", h, err)
		return
	}

	req := request{
		handle:      h,
		seq:         s.nextSeq(h),
		fingerprint: fp,
		source:      []byte(text),
		kind:        sess.Kind,
		schema:      s.sessions.Schema(sess.PID),
		enabled:     host.Config.Analyzers,
	}
	go s.run(req)
}

// nextSeq stamps a new dispatch for the surface.
func (s *Scheduler) nextSeq(h notify.Handle) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched[h]++
	return s.dispatched[h]
}

// currentSeq returns the newest dispatched sequence for the surface.
func (s *Scheduler) currentSeq(h notify.Handle) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatched[h]
}

// run executes parse and analyzer fan-out off the coordination context, then
// marshals the application step back onto the surface's consumer.
func (s *Scheduler) run(req request) {
	start := time.Now()

	ctx := context.Background()
	if s.parseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.parseTimeout)
		defer cancel()
	}

	var res *Result
	tree, err := s.parser.Parse(ctx, req.source)
	if err != nil {
		log.Printf("WARNING: %v for surface %d: %v", ErrParseFailed, req.handle, err)
		res = &Result{ParseFailed: true, ParseErr: err.Error()}
	} else {
		res = s.dispatcher.Run(tree, &Run{
			Source:  req.source,
			Kind:    req.kind,
			Schema:  req.schema,
			Enabled: req.enabled,
		})
	}
	res.Fingerprint = req.fingerprint
	res.Seq = req.seq
	res.Duration = time.Since(start)

	s.exec.Post(req.handle, func() { s.apply(req.handle, res) })
}

// apply installs a completed run's output unless a newer request was
// dispatched for the surface in the meantime. There is no mid-flight
// cancellation; staleness is only ever detected here, after completion.
func (s *Scheduler) apply(h notify.Handle, res *Result) {
	if res.Seq != s.currentSeq(h) {
		s.emit(Outcome{Handle: h, Kind: OutcomeSuperseded, Result: res})
		return
	}

	if res.ParseFailed {
		if err := s.decorator.ClearAnnotations(h); err != nil {
			log.Printf("WARNING: clearing decorations for surface %d: %v", h, err)
		}
	} else {
		if err := s.decorator.SetAnnotations(h, res.Annotations); err != nil {
			log.Printf("WARNING: applying annotations for surface %d: %v", h, err)
		}
		if err := s.decorator.SetHighlights(h, res.Highlights); err != nil {
			log.Printf("WARNING: applying highlights for surface %d: %v", h, err)
		}
	}

	if err := s.sessions.SetAnalysis(h, res.Snapshot()); err != nil {
		// The session vanished between completion and application; the shim
		// tolerates decoration calls on dead surfaces.
		return
	}

	kind := OutcomeApplied
	if res.ParseFailed {
		kind = OutcomeParseFailed
	}
	s.emit(Outcome{Handle: h, Kind: kind, Result: res})
}

// Forget drops per-surface bookkeeping once a session is gone.
func (s *Scheduler) Forget(h notify.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dispatched, h)
}

func (s *Scheduler) emit(o Outcome) {
	if s.onOutcome != nil {
		s.onOutcome(o)
	}
}
