// Package poscache remembers recently visited view and fold positions keyed
// by (process id, document identity). A bounded LRU serves the hot path; an
// optional persistent backend keeps positions alive across sidecar restarts,
// since host processes routinely outlive us.
package poscache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nixlim/sqlsidecar/internal/session"
)

// DefaultSize bounds the in-memory tier.
const DefaultSize = 256

// Record is everything needed to put a reopened document back where the
// user left it.
type Record struct {
	View  session.ViewState
	Folds session.FoldState
	Saved time.Time
}

// IsZero reports whether the record carries nothing worth restoring.
func (r Record) IsZero() bool {
	return r.View.IsZero() && r.Folds.IsZero()
}

// Backend is the persistence tier. Implementations may write asynchronously;
// the cache never reads its own writes back through the backend while the
// in-memory tier holds them.
type Backend interface {
	LoadPosition(pid int, identity string) (Record, bool)
	StorePosition(pid int, identity string, rec Record)
	DropPositions(pid int)
}

type key struct {
	pid      int
	identity string
}

// Cache is the two-tier position store. It satisfies the registry's
// position lookup, which only needs existence checks.
type Cache struct {
	hot     *lru.Cache[key, Record]
	backend Backend
}

var _ session.PositionLookup = (*Cache)(nil)

// New builds a cache with the given in-memory capacity. Zero or negative
// capacity falls back to DefaultSize. A nil backend keeps positions in
// memory only.
func New(size int, backend Backend) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	hot, err := lru.New[key, Record](size)
	if err != nil {
		// Only reachable with a non-positive size, which is normalized
		// above.
		panic(err)
	}
	return &Cache{hot: hot, backend: backend}
}

// Put stores a position, writing through to the backend. Records with
// nothing to restore are dropped instead of cached.
func (c *Cache) Put(pid int, identity string, rec Record) {
	if identity == "" {
		return
	}
	k := key{pid: pid, identity: identity}
	if rec.IsZero() {
		c.hot.Remove(k)
		return
	}
	if rec.Saved.IsZero() {
		rec.Saved = time.Now()
	}
	c.hot.Add(k, rec)
	if c.backend != nil {
		c.backend.StorePosition(pid, identity, rec)
	}
}

// Seed inserts a position into the in-memory tier only. Startup recovery
// uses it so freshly loaded rows are not echoed back to the backend.
func (c *Cache) Seed(pid int, identity string, rec Record) {
	if identity == "" || rec.IsZero() {
		return
	}
	c.hot.Add(key{pid: pid, identity: identity}, rec)
}

// Get returns the stored position, consulting the backend on a miss and
// promoting what it finds.
func (c *Cache) Get(pid int, identity string) (Record, bool) {
	k := key{pid: pid, identity: identity}
	if rec, ok := c.hot.Get(k); ok {
		return rec, true
	}
	if c.backend == nil {
		return Record{}, false
	}
	rec, ok := c.backend.LoadPosition(pid, identity)
	if !ok || rec.IsZero() {
		return Record{}, false
	}
	c.hot.Add(k, rec)
	return rec, true
}

// Has reports whether a position exists without touching recency order.
func (c *Cache) Has(pid int, identity string) bool {
	if c.hot.Contains(key{pid: pid, identity: identity}) {
		return true
	}
	if c.backend == nil {
		return false
	}
	rec, ok := c.backend.LoadPosition(pid, identity)
	return ok && !rec.IsZero()
}

// DropHost purges every position for a process id, both tiers. Process ids
// get recycled by the OS, so keeping them would restore foreign positions.
func (c *Cache) DropHost(pid int) {
	for _, k := range c.hot.Keys() {
		if k.pid == pid {
			c.hot.Remove(k)
		}
	}
	if c.backend != nil {
		c.backend.DropPositions(pid)
	}
}

// Len reports the in-memory tier's size.
func (c *Cache) Len() int { return c.hot.Len() }
