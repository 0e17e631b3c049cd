package session

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
)

// PositionLookup answers whether the recency cache holds a recorded position
// for a (pid, identity) pair. The registry only asks; restoring is the
// engine's job.
type PositionLookup interface {
	Has(pid int, identity string) bool
}

// Listener receives session lifecycle callbacks. Listeners run outside
// registry locks and receive deep copies; they may call back into the
// registry freely.
type Listener func(Session)

// Registry owns every observed host process and editor session. All reads
// hand out deep copies; all mutation happens through methods under the
// registry lock, so callers never coordinate among themselves.
type Registry struct {
	mu       sync.RWMutex
	hosts    map[int]*Host
	sessions map[notify.Handle]*Session

	decorator Decorator
	positions PositionLookup

	readyListeners []Listener
	goneListeners  []Listener
}

// NewRegistry creates an empty registry. positions may be nil, in which case
// identity changes never signal a position restore.
func NewRegistry(dec Decorator, positions PositionLookup) *Registry {
	return &Registry{
		hosts:     make(map[int]*Host),
		sessions:  make(map[notify.Handle]*Session),
		decorator: dec,
		positions: positions,
	}
}

// OnSessionReady registers a listener fired the first time a session
// completes initialization.
func (r *Registry) OnSessionReady(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readyListeners = append(r.readyListeners, l)
}

// OnSessionGone registers a listener fired when a session is removed.
func (r *Registry) OnSessionGone(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goneListeners = append(r.goneListeners, l)
}

// ObserveHost records a sighting of a host process. Unknown pids get a
// Pending host; a changed main window handle is updated in place. Returns a
// snapshot of the host.
func (r *Registry) ObserveHost(pid int, window notify.Handle) Host {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hosts[pid]
	if !ok {
		h = &Host{
			PID:        pid,
			MainWindow: window,
			State:      HostPending,
			FirstSeen:  time.Now(),
		}
		r.hosts[pid] = h
	} else if window != 0 && window != h.MainWindow {
		h.MainWindow = window
	}
	return copyHost(h)
}

// ValidateHost transitions a host to Validated and records its integration
// services handle and config snapshot. Returns true only for the call that
// performed the transition, so racing probes register the host exactly once.
func (r *Registry) ValidateHost(pid int, services uint64, cfg HostConfig) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hosts[pid]
	if !ok {
		h = &Host{PID: pid, FirstSeen: time.Now()}
		r.hosts[pid] = h
	}
	if h.State == HostValidated {
		return false
	}
	h.State = HostValidated
	h.Services = services
	h.Config = cfg
	h.ValidatedAt = time.Now()
	return true
}

// MarkHostExhausted records that discovery gave up on a pid. No-op for
// validated hosts.
func (r *Registry) MarkHostExhausted(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.hosts[pid]; ok && h.State != HostValidated {
		h.State = HostExhausted
	}
}

// HostByPID returns a snapshot of a host.
func (r *Registry) HostByPID(pid int) (Host, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hosts[pid]
	if !ok {
		return Host{}, false
	}
	return copyHost(h), true
}

// ListHosts returns snapshots of all hosts.
func (r *Registry) ListHosts() []Host {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, copyHost(h))
	}
	return out
}

// RemoveHost drops a host and every session it carries, closing the schema
// connection and releasing editor resources. Returns snapshots of the
// removed sessions. Unknown pids are a no-op.
func (r *Registry) RemoveHost(pid int) []Session {
	r.mu.Lock()
	h, ok := r.hosts[pid]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.hosts, pid)
	schema := h.schema
	h.schema = nil

	var removed []Session
	for handle, s := range r.sessions {
		if s.PID != pid {
			continue
		}
		delete(r.sessions, handle)
		removed = append(removed, copySession(s))
	}
	gone := append([]Listener(nil), r.goneListeners...)
	r.mu.Unlock()

	if schema != nil {
		if err := schema.Close(); err != nil {
			log.Printf("WARNING: closing schema connection for pid %d: %v", pid, err)
		}
	}
	for _, s := range removed {
		r.release(s.Handle)
		for _, l := range gone {
			l(s)
		}
	}
	return removed
}

// ResolveOrCreateSession returns the session for a surface handle, creating
// it if the handle is new. Fails with ErrHostNotReady unless the host has
// been validated; handles for unknown hosts never create sessions.
func (r *Registry) ResolveOrCreateSession(handle notify.Handle, pid int, kind string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[handle]; ok {
		s.LastActivity = time.Now()
		if kind != "" && s.Kind == "" {
			s.Kind = kind
		}
		return copySession(s), nil
	}

	h, ok := r.hosts[pid]
	if !ok || h.State != HostValidated {
		return Session{}, fmt.Errorf("pid %d: %w", pid, ErrHostNotReady)
	}

	now := time.Now()
	s := &Session{
		Handle:       handle,
		PID:          pid,
		Kind:         kind,
		CreatedAt:    now,
		LastActivity: now,
	}
	r.sessions[handle] = s
	return copySession(s), nil
}

// MarkInitialized runs the one-time editor hookup for a session. Repeated
// and concurrent calls are safe: the first caller runs the decorator setup,
// everyone else returns immediately. Ready listeners fire once, after the
// setup succeeds. A failed setup leaves the session uninitialized so a later
// call can retry.
func (r *Registry) MarkInitialized(handle notify.Handle) error {
	r.mu.Lock()
	s, ok := r.sessions[handle]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("handle %d: %w", handle, ErrSessionInvalid)
	}
	if s.Initialized || s.initializing {
		r.mu.Unlock()
		return nil
	}
	s.initializing = true
	r.mu.Unlock()

	err := r.decorator.Initialize(handle)

	r.mu.Lock()
	s, ok = r.sessions[handle]
	if !ok {
		// Session vanished while setup ran.
		r.mu.Unlock()
		return nil
	}
	s.initializing = false
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("initialize handle %d: %w", handle, err)
	}
	s.Initialized = true
	snap := copySession(s)
	ready := append([]Listener(nil), r.readyListeners...)
	r.mu.Unlock()

	for _, l := range ready {
		l(snap)
	}
	return nil
}

// InvalidateOnIdentityChange compares the session's identity with the one
// the surface now reports. When they differ and neither is empty, the
// session's fingerprint, view and fold snapshots are cleared and the session
// must re-initialize; the return value reports whether the recency cache
// holds a position for (pid, newIdentity) worth restoring. A first identity
// assignment (old empty) just records the identity. Calling again with the
// same identity changes nothing and returns false.
func (r *Registry) InvalidateOnIdentityChange(handle notify.Handle, newIdentity string) (bool, error) {
	r.mu.Lock()
	s, ok := r.sessions[handle]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("handle %d: %w", handle, ErrSessionInvalid)
	}
	if s.Identity == newIdentity {
		r.mu.Unlock()
		return false, nil
	}
	if s.Identity == "" || newIdentity == "" {
		if newIdentity != "" {
			s.Identity = newIdentity
		}
		r.mu.Unlock()
		return false, nil
	}

	s.Identity = newIdentity
	s.Fingerprint = ""
	s.View = ViewState{}
	s.Folds = FoldState{}
	s.Analysis = nil
	s.Initialized = false
	pid := s.PID
	r.mu.Unlock()

	if r.positions == nil {
		return false, nil
	}
	return r.positions.Has(pid, newIdentity), nil
}

// RemoveSession drops a session, releasing its editor resources. Unknown
// handles are a no-op.
func (r *Registry) RemoveSession(handle notify.Handle) {
	r.mu.Lock()
	s, ok := r.sessions[handle]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, handle)
	snap := copySession(s)
	gone := append([]Listener(nil), r.goneListeners...)
	r.mu.Unlock()

	r.release(handle)
	for _, l := range gone {
		l(snap)
	}
}

// release asks the decorator to undo the editor hookup. Failures are logged
// and swallowed; the surface is usually already gone.
func (r *Registry) release(handle notify.Handle) {
	if err := r.decorator.Release(handle); err != nil {
		log.Printf("WARNING: releasing surface %d: %v", handle, err)
	}
}

// SessionByHandle returns a snapshot of the session for a handle.
func (r *Registry) SessionByHandle(handle notify.Handle) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[handle]
	if !ok {
		return Session{}, false
	}
	return copySession(s), true
}

// ListSessions returns snapshots of every live session.
func (r *Registry) ListSessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, copySession(s))
	}
	return out
}

// SessionsForHost returns snapshots of all sessions belonging to a pid.
func (r *Registry) SessionsForHost(pid int) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Session
	for _, s := range r.sessions {
		if s.PID == pid {
			out = append(out, copySession(s))
		}
	}
	return out
}

// SetFingerprint records the last analyzed content fingerprint.
func (r *Registry) SetFingerprint(handle notify.Handle, fp string) error {
	return r.mutate(handle, func(s *Session) { s.Fingerprint = fp })
}

// SetKind records the document-kind tag for a session.
func (r *Registry) SetKind(handle notify.Handle, kind string) error {
	return r.mutate(handle, func(s *Session) { s.Kind = kind })
}

// SetView records a cursor/scroll snapshot.
func (r *Registry) SetView(handle notify.Handle, v ViewState) error {
	return r.mutate(handle, func(s *Session) { s.View = v })
}

// SetFolds records a fold-state snapshot.
func (r *Registry) SetFolds(handle notify.Handle, f FoldState) error {
	return r.mutate(handle, func(s *Session) { s.Folds = f })
}

// SetAnalysis records the outcome of an analysis run and adopts its
// fingerprint.
func (r *Registry) SetAnalysis(handle notify.Handle, snap AnalysisSnapshot) error {
	return r.mutate(handle, func(s *Session) {
		s.Fingerprint = snap.Fingerprint
		c := snap
		s.Analysis = &c
	})
}

// Touch refreshes the session's last-activity timestamp.
func (r *Registry) Touch(handle notify.Handle) {
	_ = r.mutate(handle, func(s *Session) { s.LastActivity = time.Now() })
}

func (r *Registry) mutate(handle notify.Handle, fn func(*Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[handle]
	if !ok {
		return fmt.Errorf("handle %d: %w", handle, ErrSessionInvalid)
	}
	fn(s)
	return nil
}

// SetPendingSave records the surface whose save the host just announced.
// Each host tracks a single outstanding pending save; a newer one replaces
// an unconsumed older one.
func (r *Registry) SetPendingSave(pid int, handle notify.Handle) {
	r.mu.RLock()
	h, ok := r.hosts[pid]
	r.mu.RUnlock()
	if !ok {
		return
	}
	h.saveMu.Lock()
	h.pendingSave = handle
	h.saveMu.Unlock()
}

// TakePendingSave reads and resets the host's pending save pointer. The
// debounced save handler consumes it; notification handling writes it.
func (r *Registry) TakePendingSave(pid int) (notify.Handle, bool) {
	r.mu.RLock()
	h, ok := r.hosts[pid]
	r.mu.RUnlock()
	if !ok {
		return 0, false
	}
	h.saveMu.Lock()
	defer h.saveMu.Unlock()
	if h.pendingSave == 0 {
		return 0, false
	}
	handle := h.pendingSave
	h.pendingSave = 0
	return handle, true
}

// SetSchema hands the host an exclusively-owned schema connection, closing
// any previous one. Passing nil just drops the current connection.
func (r *Registry) SetSchema(pid int, conn SchemaConn) error {
	r.mu.Lock()
	h, ok := r.hosts[pid]
	if !ok {
		r.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("pid %d: %w", pid, ErrHostNotReady)
	}
	prev := h.schema
	h.schema = conn
	r.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			log.Printf("WARNING: closing replaced schema connection for pid %d: %v", pid, err)
		}
	}
	return nil
}

// Schema returns the host's schema connection, or nil when the host has
// none. The connection stays registry-owned; callers must not close it.
func (r *Registry) Schema(pid int) SchemaConn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.hosts[pid]; ok {
		return h.schema
	}
	return nil
}

// HostCount returns the number of tracked hosts.
func (r *Registry) HostCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hosts)
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// copySession deep-copies a session so callers can hold snapshots without
// racing registry mutation.
func copySession(s *Session) Session {
	out := Session{
		Handle:       s.Handle,
		PID:          s.PID,
		Identity:     s.Identity,
		Kind:         s.Kind,
		Fingerprint:  s.Fingerprint,
		View:         s.View,
		Initialized:  s.Initialized,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
	if len(s.Folds.Collapsed) > 0 {
		out.Folds.Collapsed = append([]LineRange(nil), s.Folds.Collapsed...)
	}
	if s.Analysis != nil {
		a := *s.Analysis
		a.Annotations = append([]Annotation(nil), s.Analysis.Annotations...)
		a.Highlights = append([]Highlight(nil), s.Analysis.Highlights...)
		a.Diagnostics = append([]Diagnostic(nil), s.Analysis.Diagnostics...)
		a.Faults = append([]string(nil), s.Analysis.Faults...)
		out.Analysis = &a
	}
	return out
}

// copyHost copies the exported fields of a host.
func copyHost(h *Host) Host {
	out := Host{
		PID:         h.PID,
		MainWindow:  h.MainWindow,
		Services:    h.Services,
		State:       h.State,
		FirstSeen:   h.FirstSeen,
		ValidatedAt: h.ValidatedAt,
	}
	out.Config.Kinds = append([]string(nil), h.Config.Kinds...)
	if h.Config.Analyzers != nil {
		out.Config.Analyzers = make(map[string]bool, len(h.Config.Analyzers))
		for k, v := range h.Config.Analyzers {
			out.Config.Analyzers[k] = v
		}
	}
	return out
}
