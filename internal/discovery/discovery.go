// Package discovery locates the integration surface of host processes. A
// freshly launched host publishes window notifications before its automation
// services come up, so the first probe routinely fails; candidates that look
// like the host are retried with exponential backoff until the surface
// answers or the attempt budget runs out.
package discovery

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
)

// ErrRetryExhausted is recorded when a candidate used up its attempt budget.
// It is never surfaced to the user; the candidate is simply abandoned for
// the rest of the process lifetime.
var ErrRetryExhausted = errors.New("host discovery attempts exhausted")

// Prober performs one synchronous attempt to locate a host's integration
// services. Implementations must be safe for concurrent use.
type Prober interface {
	Probe(pid int, window notify.Handle) (services uint64, err error)
}

// State is the lifecycle position of one discovery candidate.
type State int

const (
	StateProbing State = iota
	StateRetrying
	StateSuccess
	StateExhausted
)

// String returns a display name for the state.
func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateRetrying:
		return "retrying"
	case StateSuccess:
		return "validated"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Config bounds the retry chain.
type Config struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultConfig returns the stock backoff bounds.
func DefaultConfig() Config {
	return Config{
		Base:        250 * time.Millisecond,
		Cap:         3 * time.Second,
		MaxAttempts: 10,
	}
}

// candidate is the per-pid retry bookkeeping: armed timer, attempt counter,
// last trigger handle. gen invalidates timers belonging to a replaced chain.
type candidate struct {
	pid     int
	window  notify.Handle
	state   State
	attempt int
	timer   *time.Timer
	gen     int
	nextAt  time.Time
}

// Candidate is a read-only snapshot for display.
type Candidate struct {
	PID     int
	Window  notify.Handle
	State   State
	Attempt int
	NextAt  time.Time
}

// Retrier drives discovery for any number of candidates, one retry chain per
// pid at a time.
type Retrier struct {
	cfg    Config
	prober Prober

	// matches reports whether a failed candidate still looks like the host
	// (window title / executable signature) and deserves retries.
	matches func(pid int, window notify.Handle) bool

	validated func(pid int, window notify.Handle, services uint64)
	exhausted func(pid int)

	mu         sync.Mutex
	candidates map[int]*candidate
	closed     bool
}

// NewRetrier wires a retrier. matches, validated and exhausted may be nil.
func NewRetrier(cfg Config, prober Prober, matches func(int, notify.Handle) bool) *Retrier {
	if cfg.Base <= 0 {
		cfg.Base = DefaultConfig().Base
	}
	if cfg.Cap <= 0 {
		cfg.Cap = DefaultConfig().Cap
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Retrier{
		cfg:        cfg,
		prober:     prober,
		matches:    matches,
		candidates: make(map[int]*candidate),
	}
}

// OnValidated registers the callback fired exactly once per successful
// candidate, from whichever probe won.
func (r *Retrier) OnValidated(fn func(pid int, window notify.Handle, services uint64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validated = fn
}

// OnExhausted registers the callback fired once when a candidate uses up
// its budget.
func (r *Retrier) OnExhausted(fn func(pid int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exhausted = fn
}

// Trigger starts discovery for a pid, probing once synchronously. Triggers
// for a pid already being tracked are no-ops unless they carry a different
// main-window handle, in which case the old chain is cancelled and a fresh
// one starts. A zero handle carries no window information (the shim omits
// the attribute on most notifications) and never replaces a chain; it only
// starts one for an untracked pid. Validated and exhausted candidates
// ignore triggers entirely.
func (r *Retrier) Trigger(pid int, window notify.Handle) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	c, ok := r.candidates[pid]
	if ok {
		switch c.state {
		case StateSuccess, StateExhausted:
			r.mu.Unlock()
			return
		default:
			if window == 0 || c.window == window {
				r.mu.Unlock()
				return
			}
			// A real handle that differs from the tracked one means the host
			// recreated its main window (or the chain started handle-less
			// from a scanner sighting); the chain in flight is probing a dead
			// handle. Replace it.
			if c.timer != nil {
				c.timer.Stop()
				c.timer = nil
			}
			c.window = window
			c.attempt = 0
			c.gen++
			c.nextAt = time.Time{}
		}
	} else {
		c = &candidate{pid: pid, window: window}
		r.candidates[pid] = c
	}
	c.state = StateProbing
	gen := c.gen
	r.mu.Unlock()

	r.probe(pid, window, gen)
}

// probe performs one attempt and advances the candidate's state machine.
func (r *Retrier) probe(pid int, window notify.Handle, gen int) {
	services, err := r.prober.Probe(pid, window)

	r.mu.Lock()
	c, ok := r.candidates[pid]
	if !ok || c.gen != gen || r.closed {
		r.mu.Unlock()
		return
	}

	if err == nil {
		c.state = StateSuccess
		c.timer = nil
		c.nextAt = time.Time{}
		cb := r.validated
		r.mu.Unlock()
		if cb != nil {
			cb(pid, window, services)
		}
		return
	}

	c.attempt++

	if c.attempt == 1 && r.matches != nil && !r.matches(pid, window) {
		// Some other application's window. Forget it without noise.
		delete(r.candidates, pid)
		r.mu.Unlock()
		return
	}

	if c.attempt >= r.cfg.MaxAttempts {
		c.state = StateExhausted
		c.timer = nil
		c.nextAt = time.Time{}
		cb := r.exhausted
		r.mu.Unlock()
		log.Printf("WARNING: %v for pid %d after %d attempts", ErrRetryExhausted, pid, r.cfg.MaxAttempts)
		if cb != nil {
			cb(pid)
		}
		return
	}

	delay := r.backoff(c.attempt)
	c.state = StateRetrying
	c.nextAt = time.Now().Add(delay)
	c.timer = time.AfterFunc(delay, func() { r.retry(pid, gen) })
	r.mu.Unlock()
}

// retry fires from the chain timer and re-probes unless the chain was
// replaced or resolved in the meantime.
func (r *Retrier) retry(pid int, gen int) {
	r.mu.Lock()
	c, ok := r.candidates[pid]
	if !ok || c.gen != gen || c.state != StateRetrying || r.closed {
		r.mu.Unlock()
		return
	}
	c.state = StateProbing
	c.timer = nil
	window := c.window
	r.mu.Unlock()

	r.probe(pid, window, gen)
}

// backoff returns the delay scheduled after the given number of failed
// attempts: base doubled per attempt, capped. Deliberately jitter-free so
// delays never shrink within a chain.
func (r *Retrier) backoff(attempt int) time.Duration {
	d := r.cfg.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= r.cfg.Cap {
			return r.cfg.Cap
		}
	}
	if d > r.cfg.Cap {
		return r.cfg.Cap
	}
	return d
}

// Forget drops a candidate and stops its chain, typically because the
// process exited. Safe for unknown pids.
func (r *Retrier) Forget(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.candidates[pid]
	if !ok {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	delete(r.candidates, pid)
}

// Candidates returns snapshots of all tracked candidates.
func (r *Retrier) Candidates() []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Candidate, 0, len(r.candidates))
	for _, c := range r.candidates {
		out = append(out, Candidate{
			PID:     c.pid,
			Window:  c.window,
			State:   c.state,
			Attempt: c.attempt,
			NextAt:  c.nextAt,
		})
	}
	return out
}

// Tracking reports whether the pid has a live (non-terminal) candidate.
func (r *Retrier) Tracking(pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.candidates[pid]
	return ok && (c.state == StateProbing || c.state == StateRetrying)
}

// ArmedTimer reports whether a retry timer is currently scheduled for the
// pid.
func (r *Retrier) ArmedTimer(pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.candidates[pid]
	return ok && c.timer != nil
}

// Close stops every chain. Further triggers are ignored.
func (r *Retrier) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, c := range r.candidates {
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
	}
}
