package notify

import (
	"sync"
	"time"
)

// Windows holds the settle window per debounce class. A burst of
// notifications in one class for one surface produces a single delivery
// once the stream has been quiet for the class window.
type Windows struct {
	Focus   time.Duration
	Save    time.Duration
	Content time.Duration
}

// DefaultWindows returns the stock settle windows.
func DefaultWindows() Windows {
	return Windows{
		Focus:   150 * time.Millisecond,
		Save:    300 * time.Millisecond,
		Content: 1000 * time.Millisecond,
	}
}

// Window returns the settle window for a class.
func (w Windows) Window(c Class) time.Duration {
	switch c {
	case ClassFocus:
		return w.Focus
	case ClassSave:
		return w.Save
	default:
		return w.Content
	}
}

// burstKey identifies one independent debounce timer.
type burstKey struct {
	surface Handle
	class   Class
}

// burst tracks an in-progress notification burst. Each arrival overwrites
// latest and pushes deadline out; the timer callback delivers only once the
// deadline has genuinely passed, re-arming itself if an arrival raced it.
type burst struct {
	timer    *time.Timer
	latest   Notification
	deadline time.Time
}

// worker serializes all settled deliveries and posted work for one surface.
// Downstream handlers therefore never observe two callbacks for the same
// surface concurrently.
type worker struct {
	ch   chan func()
	quit chan struct{}
}

func newWorker() *worker {
	w := &worker{
		ch:   make(chan func(), 64),
		quit: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	for {
		select {
		case <-w.quit:
			return
		case fn := <-w.ch:
			fn()
		}
	}
}

func (w *worker) post(fn func()) {
	select {
	case <-w.quit:
	case w.ch <- fn:
	}
}

// Coordinator coalesces notification bursts per (surface, class) with
// trailing-edge timers and hands the latest payload of each burst to the
// delivery callback on the surface's own consumer goroutine.
type Coordinator struct {
	windows Windows
	deliver func(Notification)

	mu      sync.Mutex
	bursts  map[burstKey]*burst
	workers map[Handle]*worker
	closed  bool
}

// NewCoordinator returns a coordinator delivering settled notifications to
// deliver. The callback runs on a per-surface goroutine; callbacks for
// different surfaces may run concurrently.
func NewCoordinator(windows Windows, deliver func(Notification)) *Coordinator {
	return &Coordinator{
		windows: windows,
		deliver: deliver,
		bursts:  make(map[burstKey]*burst),
		workers: make(map[Handle]*worker),
	}
}

// Signal records one raw notification. The first arrival in a class starts
// that class's settle timer; subsequent arrivals replace the stored payload
// and extend the deadline. When the burst goes quiet the latest payload is
// delivered exactly once.
func (c *Coordinator) Signal(n Notification) {
	class, ok := ClassOf(n.Kind)
	if !ok {
		return
	}
	window := c.windows.Window(class)
	key := burstKey{surface: n.Surface, class: class}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	b, exists := c.bursts[key]
	if !exists {
		b = &burst{}
		c.bursts[key] = b
	}
	b.latest = n
	b.deadline = time.Now().Add(window)
	if b.timer == nil {
		b.timer = time.AfterFunc(window, func() { c.fire(key) })
	} else {
		b.timer.Reset(window)
	}
}

// fire runs on the timer goroutine. If a fresh arrival extended the deadline
// after this fire was scheduled, it re-arms for the remainder instead of
// delivering.
func (c *Coordinator) fire(key burstKey) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	b, ok := c.bursts[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	if remain := time.Until(b.deadline); remain > 0 {
		b.timer.Reset(remain)
		c.mu.Unlock()
		return
	}
	n := b.latest
	delete(c.bursts, key)
	w := c.workerLocked(key.surface)
	c.mu.Unlock()

	w.post(func() { c.deliver(n) })
}

// Post runs fn on the surface's consumer goroutine, after any deliveries
// already queued for that surface. Analysis completion uses this to marshal
// result application back onto the surface's serial context.
func (c *Coordinator) Post(surface Handle, fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	w := c.workerLocked(surface)
	c.mu.Unlock()

	w.post(fn)
}

// workerLocked returns the surface's consumer, creating it on first use.
// Callers must hold c.mu.
func (c *Coordinator) workerLocked(surface Handle) *worker {
	w, ok := c.workers[surface]
	if !ok {
		w = newWorker()
		c.workers[surface] = w
	}
	return w
}

// Drop cancels all pending bursts for a surface and stops its consumer.
// Work already queued on the consumer is abandoned. Safe to call for
// surfaces the coordinator has never seen.
func (c *Coordinator) Drop(surface Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, b := range c.bursts {
		if key.surface != surface {
			continue
		}
		b.timer.Stop()
		delete(c.bursts, key)
	}
	if w, ok := c.workers[surface]; ok {
		close(w.quit)
		delete(c.workers, surface)
	}
}

// Pending reports whether any burst timer is armed for the surface.
func (c *Coordinator) Pending(surface Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.bursts {
		if key.surface == surface {
			return true
		}
	}
	return false
}

// Close cancels every timer and consumer. Signal and Post become no-ops.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for key, b := range c.bursts {
		b.timer.Stop()
		delete(c.bursts, key)
	}
	for surface, w := range c.workers {
		close(w.quit)
		delete(c.workers, surface)
	}
}
