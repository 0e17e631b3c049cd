// Package navigate keeps per-host back/forward history over visited
// editor locations. Jumps land on surfaces that may have closed since the
// entry was recorded; traversal skips those transparently instead of
// surfacing errors.
package navigate

import (
	"errors"
	"sync"
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
	"github.com/nixlim/sqlsidecar/internal/parse"
)

// ErrAtBoundary is returned when a traversal runs off either end of the
// stack.
var ErrAtBoundary = errors.New("navigation history boundary")

// DefaultLimit bounds a host's stack; the oldest entries fall off first.
const DefaultLimit = 100

// Entry is one visited location.
type Entry struct {
	// Identity names the document, independent of which surface shows it.
	Identity string
	// Span is the selection or jump target inside the document.
	Span parse.Span
	// Anchor is the first visible line at the time of the jump, so a
	// restore can reproduce the scroll position rather than just the caret.
	Anchor int
	// Surface is the editor surface the location was visited in.
	Surface notify.Handle
	Time    time.Time
}

// Resolver reports whether a surface handle still maps to a live session.
// Stale entries found during traversal are pruned.
type Resolver func(h notify.Handle) bool

// History holds one stack per host process.
type History struct {
	mu      sync.Mutex
	resolve Resolver
	limit   int
	stacks  map[int]*stack
}

// Option adjusts History construction.
type Option func(*History)

// WithLimit overrides the per-host stack bound. Zero or negative means
// unbounded.
func WithLimit(n int) Option {
	return func(h *History) { h.limit = n }
}

// NewHistory builds an empty history. A nil resolver treats every entry as
// live.
func NewHistory(resolve Resolver, opts ...Option) *History {
	h := &History{
		resolve: resolve,
		limit:   DefaultLimit,
		stacks:  make(map[int]*stack),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Push records a visited location for a host. Pushing while the cursor sits
// mid-stack truncates the forward branch; a push that lands on the entry the
// cursor already points at is coalesced in place instead of stacked.
func (h *History) Push(pid int, e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stackFor(pid).push(e, h.limit)
}

// Back moves the cursor one live entry toward the oldest and returns it.
func (h *History) Back(pid int) (Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stackFor(pid).back(h.resolve)
}

// Forward moves the cursor one live entry toward the newest and returns it.
func (h *History) Forward(pid int) (Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stackFor(pid).forward(h.resolve)
}

// Depth reports how many entries sit behind and ahead of the cursor,
// without liveness filtering. The display layer uses it for affordances.
func (h *History) Depth(pid int) (back, forward int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.stacks[pid]
	if !ok || s.index < 0 {
		return 0, 0
	}
	return s.index, len(s.entries) - 1 - s.index
}

// Snapshot copies a host's stack, oldest first.
func (h *History) Snapshot(pid int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.stacks[pid]
	if !ok {
		return nil
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Drop discards a host's stack when the process goes away.
func (h *History) Drop(pid int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.stacks, pid)
}

func (h *History) stackFor(pid int) *stack {
	s, ok := h.stacks[pid]
	if !ok {
		s = &stack{index: -1}
		h.stacks[pid] = s
	}
	return s
}

type stack struct {
	entries []Entry
	// index points at the current entry, -1 while empty.
	index int
}

func (s *stack) push(e Entry, limit int) {
	if s.index >= 0 {
		cur := s.entries[s.index]
		if cur.Surface == e.Surface && cur.Identity == e.Identity {
			s.entries[s.index] = e
			return
		}
	}
	s.entries = append(s.entries[:s.index+1], e)
	s.index = len(s.entries) - 1
	if limit > 0 && len(s.entries) > limit {
		drop := len(s.entries) - limit
		s.entries = append([]Entry(nil), s.entries[drop:]...)
		s.index -= drop
	}
}

func (s *stack) back(resolve Resolver) (Entry, error) {
	for s.index > 0 {
		j := s.index - 1
		e := s.entries[j]
		if resolve == nil || resolve(e.Surface) {
			s.index = j
			return e, nil
		}
		s.entries = append(s.entries[:j], s.entries[j+1:]...)
		s.index--
	}
	return Entry{}, ErrAtBoundary
}

func (s *stack) forward(resolve Resolver) (Entry, error) {
	for s.index < len(s.entries)-1 {
		j := s.index + 1
		e := s.entries[j]
		if resolve == nil || resolve(e.Surface) {
			s.index = j
			return e, nil
		}
		s.entries = append(s.entries[:j], s.entries[j+1:]...)
	}
	return Entry{}, ErrAtBoundary
}
