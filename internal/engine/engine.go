// Package engine assembles the pipeline: raw notifications in, debounced
// per-surface deliveries, discovery retries for new hosts, analysis
// dispatch, navigation history and position persistence. One ingest
// goroutine owns notification handling; everything downstream runs on the
// per-surface consumers the debounce coordinator provides.
package engine

import (
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nixlim/sqlsidecar/internal/activity"
	"github.com/nixlim/sqlsidecar/internal/analysis"
	"github.com/nixlim/sqlsidecar/internal/config"
	"github.com/nixlim/sqlsidecar/internal/discovery"
	"github.com/nixlim/sqlsidecar/internal/navigate"
	"github.com/nixlim/sqlsidecar/internal/notify"
	"github.com/nixlim/sqlsidecar/internal/parse"
	"github.com/nixlim/sqlsidecar/internal/poscache"
	"github.com/nixlim/sqlsidecar/internal/scanner"
	"github.com/nixlim/sqlsidecar/internal/session"
	"github.com/nixlim/sqlsidecar/internal/stats"
	"github.com/nixlim/sqlsidecar/internal/storage"
)

// defaultDocKind tags surfaces whose creation notification carried no
// document kind.
const defaultDocKind = "sql"

// Options carries the engine's external collaborators. Decorator, Prober
// and Parser are required; Store may be nil for memory-only runs.
type Options struct {
	Config    config.Config
	Decorator session.Decorator
	Prober    discovery.Prober
	Parser    parse.Parser
	Analyzers []analysis.Analyzer
	Store     *storage.Store

	// Notifications is the inbound stream, usually the bridge channel.
	Notifications <-chan notify.Notification

	// Alive overrides process liveness checks. Nil means the platform
	// check; tests substitute their own.
	Alive func(pid int) bool
}

// Engine owns the orchestration state for one sidecar run.
type Engine struct {
	cfg config.Config

	registry  *session.Registry
	decorator session.Decorator
	coord     *notify.Coordinator
	retrier   *discovery.Retrier
	scheduler *analysis.Scheduler
	history   *navigate.History
	positions *poscache.Cache
	store     *storage.Store
	feed      *activity.Feed
	counters  *stats.Counters

	notifications <-chan notify.Notification
	alive         func(pid int) bool

	// titles keeps the last shim-reported main-window title per pid, the
	// signal the discovery match predicate checks against the configured
	// host signature.
	titleMu sync.Mutex
	titles  map[int]string

	started atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// New wires an engine. It seeds the position cache from storage when a
// store is present; nothing runs until Start.
func New(opts Options) *Engine {
	cfg := opts.Config

	var backend poscache.Backend
	if opts.Store != nil {
		backend = opts.Store
	}
	positions := poscache.New(cfg.Cache.RecencySize, backend)
	if opts.Store != nil {
		recovered, err := opts.Store.RecentPositions(cfg.Cache.RecencySize)
		if err != nil {
			log.Printf("WARNING: position recovery failed: %v", err)
		}
		for _, p := range recovered {
			positions.Seed(p.PID, p.Identity, p.Record)
		}
		if len(recovered) > 0 {
			log.Printf("recovered %d positions from cache database", len(recovered))
		}
	}

	e := &Engine{
		cfg:           cfg,
		decorator:     opts.Decorator,
		positions:     positions,
		store:         opts.Store,
		feed:          activity.NewFeed(cfg.Display.ActivityBufferSize),
		counters:      &stats.Counters{},
		notifications: opts.Notifications,
		alive:         opts.Alive,
		titles:        make(map[int]string),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if e.alive == nil {
		e.alive = scanner.Alive
	}

	e.registry = session.NewRegistry(opts.Decorator, positions)
	e.registry.OnSessionReady(func(s session.Session) {
		e.feed.Add(activity.SessionEntry("ready", s))
	})
	e.registry.OnSessionGone(func(s session.Session) {
		e.feed.Add(activity.SessionEntry("gone", s))
	})

	// The notification stream guarantees no SurfaceDestroyed delivery, so a
	// registry hit alone cannot prove an old history entry's surface is
	// still alive. Traversal probes the shim and reaps sessions whose
	// destroy notification was lost.
	e.history = navigate.NewHistory(func(h notify.Handle) bool {
		if _, ok := e.registry.SessionByHandle(h); !ok {
			return false
		}
		if e.decorator.Valid(h) {
			return true
		}
		e.dropSurface(h)
		return false
	})

	e.coord = notify.NewCoordinator(notify.Windows{
		Focus:   time.Duration(cfg.Debounce.FocusMS) * time.Millisecond,
		Save:    time.Duration(cfg.Debounce.SaveMS) * time.Millisecond,
		Content: time.Duration(cfg.Debounce.ContentMS) * time.Millisecond,
	}, e.deliver)

	dispatcher := analysis.NewDispatcher(opts.Analyzers...)
	e.scheduler = analysis.NewScheduler(e.registry, opts.Decorator, opts.Parser, dispatcher, e.coord,
		analysis.WithParseTimeout(time.Duration(cfg.Analysis.ParseTimeoutMS)*time.Millisecond),
		analysis.WithOutcomeFunc(e.onOutcome),
	)

	e.retrier = discovery.NewRetrier(discovery.Config{
		Base:        time.Duration(cfg.Discovery.BackoffBaseMS) * time.Millisecond,
		Cap:         time.Duration(cfg.Discovery.BackoffCapMS) * time.Millisecond,
		MaxAttempts: cfg.Discovery.MaxAttempts,
	}, opts.Prober, func(pid int, _ notify.Handle) bool {
		return e.alive(pid) && e.titleMatches(pid)
	})
	e.retrier.OnValidated(e.onHostValidated)
	e.retrier.OnExhausted(e.onHostExhausted)

	return e
}

// Start launches the ingest loop.
func (e *Engine) Start() {
	if e.started.CompareAndSwap(false, true) {
		go e.ingest()
	}
}

// Stop halts ingestion and tears down the coordinator, discovery chains and
// consumer goroutines. The notification channel stays with its producer.
func (e *Engine) Stop() {
	if e.started.CompareAndSwap(true, false) {
		close(e.stop)
		<-e.done
	}
	e.retrier.Close()
	e.coord.Close()
}

func (e *Engine) ingest() {
	defer close(e.done)
	for {
		select {
		case <-e.stop:
			return
		case n, ok := <-e.notifications:
			if !ok {
				return
			}
			e.handle(n)
		}
	}
}

// handle is the single-threaded notification entry point.
func (e *Engine) handle(n notify.Notification) {
	e.counters.NoteNotification()
	e.feed.Add(activity.NotificationEntry(n))

	e.observeHost(n)

	switch n.Kind {
	case notify.KindSurfaceCreated:
		e.onSurfaceCreated(n)
	case notify.KindSurfaceDestroyed:
		e.onSurfaceDestroyed(n.Surface)
	case notify.KindSaveCommitted:
		// The raw arrival records which surface the host is saving; the
		// debounced delivery consumes it after the burst settles.
		e.registry.SetPendingSave(n.PID, n.Surface)
		e.coord.Signal(n)
	case notify.KindFocus, notify.KindContentModified:
		e.coord.Signal(n)
	}
}

// observeHost makes sure the notification's pid is tracked and discovery is
// running for it. A changed main window re-triggers discovery, which
// replaces a mid-flight retry chain.
func (e *Engine) observeHost(n notify.Notification) {
	if title := n.Payload["title"]; title != "" {
		e.titleMu.Lock()
		e.titles[n.PID] = title
		e.titleMu.Unlock()
	}

	window := mainWindow(n)
	host, known := e.registry.HostByPID(n.PID)
	if known && host.State == session.HostValidated {
		return
	}
	e.registry.ObserveHost(n.PID, window)
	e.retrier.Trigger(n.PID, window)
}

// titleMatches checks the pid's last reported window title against the
// configured host signature. Pids with no reported title pass; scanner
// sightings precede any shim traffic and liveness is the only signal then.
func (e *Engine) titleMatches(pid int) bool {
	sig := e.cfg.Discovery.TitleSignature
	if sig == "" {
		return true
	}
	e.titleMu.Lock()
	title := e.titles[pid]
	e.titleMu.Unlock()
	if title == "" {
		return true
	}
	return strings.Contains(title, sig)
}

// mainWindow extracts the host's main window handle from a notification
// payload. Zero when the shim did not include one.
func mainWindow(n notify.Notification) notify.Handle {
	raw, ok := n.Payload["window"]
	if !ok {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return notify.Handle(v)
}

func docKind(n notify.Notification) string {
	if kind := n.Payload["doc_kind"]; kind != "" {
		return kind
	}
	return defaultDocKind
}

func (e *Engine) onSurfaceCreated(n notify.Notification) {
	sess, err := e.registry.ResolveOrCreateSession(n.Surface, n.PID, docKind(n))
	if err != nil {
		// Host not validated yet; the surface will be picked up by its
		// first focus after discovery succeeds.
		return
	}
	e.feed.Add(activity.SessionEntry("created", sess))
	e.coord.Post(n.Surface, func() {
		if err := e.registry.MarkInitialized(n.Surface); err != nil {
			log.Printf("WARNING: initializing surface %d: %v", n.Surface, err)
		}
	})
}

func (e *Engine) onSurfaceDestroyed(h notify.Handle) {
	e.dropSurface(h)
}

// dropSurface tears down everything keyed by a surface handle, whether the
// host announced the destruction or a validity probe discovered it.
func (e *Engine) dropSurface(h notify.Handle) {
	e.registry.RemoveSession(h)
	e.scheduler.Forget(h)
	e.coord.Drop(h)
}

// deliver receives debounced notifications on the surface's consumer
// goroutine.
func (e *Engine) deliver(n notify.Notification) {
	e.counters.NoteDelivery()

	class, ok := notify.ClassOf(n.Kind)
	if !ok {
		return
	}
	switch class {
	case notify.ClassFocus:
		e.onFocusSettled(n)
	case notify.ClassContent:
		e.scheduler.OnContentSettled(n.Surface)
		e.registry.Touch(n.Surface)
	case notify.ClassSave:
		e.onSaveSettled(n)
	}
}

// onFocusSettled runs the focus pipeline: session hookup, identity check
// with recycling invalidation, position restore, position capture and a
// navigation history push.
func (e *Engine) onFocusSettled(n notify.Notification) {
	h := n.Surface
	sess, ok := e.registry.SessionByHandle(h)
	if !ok {
		var err error
		sess, err = e.registry.ResolveOrCreateSession(h, n.PID, docKind(n))
		if err != nil {
			return
		}
	}

	identity, err := e.decorator.Identity(h)
	if err != nil {
		log.Printf("WARNING: identity for surface %d: %v", h, err)
		return
	}

	restore := false
	if identity != "" {
		restore, err = e.registry.InvalidateOnIdentityChange(h, identity)
		if err != nil {
			return
		}
	}

	if err := e.registry.MarkInitialized(h); err != nil {
		log.Printf("WARNING: initializing surface %d: %v", h, err)
		return
	}

	if restore {
		e.restorePosition(h, sess.PID, identity)
	}

	e.capturePosition(h, sess.PID, identity)

	if identity != "" {
		snap, _ := e.registry.SessionByHandle(h)
		e.history.Push(sess.PID, navigate.Entry{
			Identity: identity,
			Anchor:   snap.View.ScrollTop,
			Surface:  h,
			Time:     time.Now(),
		})
	}
	e.registry.Touch(h)
}

// restorePosition puts a reopened document back where the user left it.
func (e *Engine) restorePosition(h notify.Handle, pid int, identity string) {
	rec, ok := e.positions.Get(pid, identity)
	if !ok {
		return
	}
	if !rec.View.IsZero() {
		if err := e.decorator.RestoreViewState(h, rec.View); err != nil {
			log.Printf("WARNING: restoring view for surface %d: %v", h, err)
			return
		}
		_ = e.registry.SetView(h, rec.View)
	}
	if !rec.Folds.IsZero() {
		if err := e.decorator.RestoreFoldState(h, rec.Folds); err != nil {
			log.Printf("WARNING: restoring folds for surface %d: %v", h, err)
			return
		}
		_ = e.registry.SetFolds(h, rec.Folds)
	}
}

// capturePosition snapshots the surface's current view and folds into the
// session and the recency cache.
func (e *Engine) capturePosition(h notify.Handle, pid int, identity string) {
	view, err := e.decorator.ViewState(h)
	if err != nil {
		return
	}
	folds, err := e.decorator.FoldState(h)
	if err != nil {
		folds = session.FoldState{}
	}

	_ = e.registry.SetView(h, view)
	_ = e.registry.SetFolds(h, folds)
	if identity != "" {
		e.positions.Put(pid, identity, poscache.Record{View: view, Folds: folds})
	}
}

// onSaveSettled persists the position of the surface whose save the host
// announced. The pending-save pointer names it; the debounced surface is
// the fallback when the pointer was already consumed.
func (e *Engine) onSaveSettled(n notify.Notification) {
	h, ok := e.registry.TakePendingSave(n.PID)
	if !ok {
		h = n.Surface
	}
	sess, ok := e.registry.SessionByHandle(h)
	if !ok {
		return
	}
	e.capturePosition(h, sess.PID, sess.Identity)
	e.registry.Touch(h)
	e.feed.Add(activity.SessionEntry("saved", sess))
}

// onOutcome records every scheduling decision: counters, the activity
// feed, and the run journal for terminal outcomes.
func (e *Engine) onOutcome(o analysis.Outcome) {
	e.counters.NoteOutcome(o)
	e.feed.Add(activity.AnalysisEntry(o))

	if e.store == nil || o.Result == nil {
		return
	}
	if o.Kind != analysis.OutcomeApplied && o.Kind != analysis.OutcomeParseFailed {
		return
	}
	sess, _ := e.registry.SessionByHandle(o.Handle)
	e.store.RecordRun(storage.RunRecord{
		PID:         sess.PID,
		Surface:     o.Handle,
		Identity:    sess.Identity,
		Outcome:     o.Kind.String(),
		Diagnostics: len(o.Result.Diagnostics),
		Highlights:  len(o.Result.Highlights),
		Faults:      len(o.Result.Faults),
		Duration:    o.Result.Duration,
	})
}

// HostSeen is the scanner's appearance hook. The window handle is unknown
// until the shim starts talking, so discovery starts with none.
func (e *Engine) HostSeen(info scanner.ProcessInfo) {
	e.registry.ObserveHost(info.PID, 0)
	e.retrier.Trigger(info.PID, 0)
	e.feed.Add(activity.Entry{
		PID:       info.PID,
		Category:  activity.CategoryDiscovery,
		Formatted: "[" + strconv.Itoa(info.PID) + "] host process " + info.BinaryName + " appeared",
	})
}

// HostGone tears down everything belonging to a dead host process.
func (e *Engine) HostGone(pid int) {
	removed := e.registry.RemoveHost(pid)
	for _, s := range removed {
		e.scheduler.Forget(s.Handle)
		e.coord.Drop(s.Handle)
	}
	e.history.Drop(pid)
	e.positions.DropHost(pid)
	e.retrier.Forget(pid)
	e.titleMu.Lock()
	delete(e.titles, pid)
	e.titleMu.Unlock()
	e.feed.Add(activity.Entry{
		PID:       pid,
		Category:  activity.CategoryDiscovery,
		Formatted: "[" + strconv.Itoa(pid) + "] host process exited, " + strconv.Itoa(len(removed)) + " sessions dropped",
	})
}

// onHostValidated is the discovery success hook.
func (e *Engine) onHostValidated(pid int, window notify.Handle, services uint64) {
	cfg := session.HostConfig{
		Kinds:     e.cfg.Analysis.Kinds,
		Analyzers: e.cfg.Analysis.Analyzers,
	}
	if e.registry.ValidateHost(pid, services, cfg) {
		e.feed.Add(activity.DiscoveryEntry(discovery.Candidate{
			PID:    pid,
			Window: window,
			State:  discovery.StateSuccess,
		}))
	}
}

// onHostExhausted is the discovery give-up hook.
func (e *Engine) onHostExhausted(pid int) {
	e.registry.MarkHostExhausted(pid)
	e.feed.Add(activity.DiscoveryEntry(discovery.Candidate{
		PID:   pid,
		State: discovery.StateExhausted,
	}))
}

// NavigateBack jumps the host's history one entry backward and reveals it.
func (e *Engine) NavigateBack(pid int) error {
	entry, err := e.history.Back(pid)
	if err != nil {
		return err
	}
	return e.decorator.Reveal(entry.Surface, entry.Anchor)
}

// NavigateForward jumps the host's history one entry forward and reveals it.
func (e *Engine) NavigateForward(pid int) error {
	entry, err := e.history.Forward(pid)
	if err != nil {
		return err
	}
	return e.decorator.Reveal(entry.Surface, entry.Anchor)
}

// Registry exposes the session registry for display providers.
func (e *Engine) Registry() *session.Registry { return e.registry }

// Activity exposes the activity feed.
func (e *Engine) Activity() *activity.Feed { return e.feed }

// Counters exposes the engine tallies.
func (e *Engine) Counters() *stats.Counters { return e.counters }

// Candidates snapshots the discovery state for display.
func (e *Engine) Candidates() []discovery.Candidate { return e.retrier.Candidates() }

// HistoryDepth reports the back/forward depths for a host.
func (e *Engine) HistoryDepth(pid int) (back, forward int) {
	return e.history.Depth(pid)
}
