// Package activity keeps a bounded, display-ready feed of what the sidecar
// has been doing: notifications it ingested, analysis runs it applied,
// discovery progress, session lifecycle. The display layer renders it
// verbatim.
package activity

import (
	"sync"
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
)

// Feed categories.
const (
	CategoryNotify    = "notify"
	CategoryAnalysis  = "analysis"
	CategoryDiscovery = "discovery"
	CategorySession   = "session"
)

// Entry is one display-ready feed line with enough metadata to filter on.
type Entry struct {
	PID       int
	Surface   notify.Handle
	Category  string
	Formatted string
	Timestamp time.Time
	OK        *bool // nil when success/failure does not apply
}

// Feed is a fixed-capacity, thread-safe ring of entries. When full, the
// oldest entry is evicted. All methods are safe for concurrent use.
type Feed struct {
	mu    sync.RWMutex
	items []Entry
	cap   int
	head  int // index of the oldest element
	count int
}

// NewFeed creates a feed with the given capacity, clamped to at least 1.
func NewFeed(capacity int) *Feed {
	if capacity < 1 {
		capacity = 1
	}
	return &Feed{
		items: make([]Entry, capacity),
		cap:   capacity,
	}
}

// Add inserts an entry, evicting the oldest when full. A zero timestamp is
// stamped with the current time.
func (f *Feed) Add(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	writePos := (f.head + f.count) % f.cap
	if f.count == f.cap {
		f.items[f.head] = e
		f.head = (f.head + 1) % f.cap
	} else {
		f.items[writePos] = e
		f.count++
	}
}

// ListAll returns every entry in chronological order, oldest first.
func (f *Feed) ListAll() []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.listLocked()
}

// Recent returns the newest n entries in chronological order.
func (f *Feed) Recent(n int) []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	all := f.listLocked()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// ListBySurface returns entries for one editor surface in chronological
// order.
func (f *Feed) ListBySurface(h notify.Handle) []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var result []Entry
	for _, e := range f.listLocked() {
		if e.Surface == h {
			result = append(result, e)
		}
	}
	return result
}

// ListByCategory returns entries of one category in chronological order.
func (f *Feed) ListByCategory(category string) []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var result []Entry
	for _, e := range f.listLocked() {
		if e.Category == category {
			result = append(result, e)
		}
	}
	return result
}

// Len returns the number of entries currently held.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// Cap returns the feed's capacity.
func (f *Feed) Cap() int {
	return f.cap
}

// listLocked returns entries in chronological order. Caller must hold at
// least a read lock.
func (f *Feed) listLocked() []Entry {
	if f.count == 0 {
		return nil
	}
	result := make([]Entry, f.count)
	for i := 0; i < f.count; i++ {
		result[i] = f.items[(f.head+i)%f.cap]
	}
	return result
}
