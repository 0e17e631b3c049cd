package navigate

import (
	"errors"
	"testing"

	"github.com/nixlim/sqlsidecar/internal/notify"
)

func entry(surface notify.Handle, identity string) Entry {
	return Entry{Identity: identity, Surface: surface}
}

func mustBack(t *testing.T, h *History, pid int) Entry {
	t.Helper()
	e, err := h.Back(pid)
	if err != nil {
		t.Fatalf("back: %v", err)
	}
	return e
}

func mustForward(t *testing.T, h *History, pid int) Entry {
	t.Helper()
	e, err := h.Forward(pid)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	return e
}

func TestPushTruncatesForwardBranch(t *testing.T) {
	h := NewHistory(nil)
	h.Push(1, entry(10, "a"))
	h.Push(1, entry(11, "b"))
	h.Push(1, entry(12, "c"))

	if e := mustBack(t, h, 1); e.Identity != "b" {
		t.Fatalf("first back: got %q, want b", e.Identity)
	}
	if e := mustBack(t, h, 1); e.Identity != "a" {
		t.Fatalf("second back: got %q, want a", e.Identity)
	}
	if e := mustForward(t, h, 1); e.Identity != "b" {
		t.Fatalf("forward: got %q, want b", e.Identity)
	}

	// Branching from b drops c.
	h.Push(1, entry(13, "d"))

	got := h.Snapshot(1)
	want := []string{"a", "b", "d"}
	if len(got) != len(want) {
		t.Fatalf("stack length %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Identity != w {
			t.Errorf("stack[%d] = %q, want %q", i, got[i].Identity, w)
		}
	}

	if _, err := h.Forward(1); !errors.Is(err, ErrAtBoundary) {
		t.Errorf("forward past the tail: got %v, want ErrAtBoundary", err)
	}
}

func TestBoundaryOnEmptyAndSingle(t *testing.T) {
	h := NewHistory(nil)
	if _, err := h.Back(1); !errors.Is(err, ErrAtBoundary) {
		t.Errorf("back on empty: %v", err)
	}
	if _, err := h.Forward(1); !errors.Is(err, ErrAtBoundary) {
		t.Errorf("forward on empty: %v", err)
	}

	h.Push(1, entry(10, "a"))
	if _, err := h.Back(1); !errors.Is(err, ErrAtBoundary) {
		t.Errorf("back with single entry: %v", err)
	}
	if _, err := h.Forward(1); !errors.Is(err, ErrAtBoundary) {
		t.Errorf("forward with single entry: %v", err)
	}
}

func TestBackSkipsStaleEntries(t *testing.T) {
	dead := map[notify.Handle]bool{}
	h := NewHistory(func(s notify.Handle) bool { return !dead[s] })

	h.Push(1, entry(10, "a"))
	h.Push(1, entry(11, "b"))
	h.Push(1, entry(12, "c"))
	dead[11] = true

	if e := mustBack(t, h, 1); e.Identity != "a" {
		t.Fatalf("back over stale entry: got %q, want a", e.Identity)
	}
	// The stale entry is pruned, so forward lands on c directly.
	if e := mustForward(t, h, 1); e.Identity != "c" {
		t.Fatalf("forward after prune: got %q, want c", e.Identity)
	}
	if back, fwd := h.Depth(1); back != 1 || fwd != 0 {
		t.Errorf("depth after prune: back=%d fwd=%d", back, fwd)
	}
}

func TestForwardSkipsStaleEntries(t *testing.T) {
	dead := map[notify.Handle]bool{}
	h := NewHistory(func(s notify.Handle) bool { return !dead[s] })

	h.Push(1, entry(10, "a"))
	h.Push(1, entry(11, "b"))
	h.Push(1, entry(12, "c"))
	mustBack(t, h, 1)
	mustBack(t, h, 1)
	dead[11] = true

	if e := mustForward(t, h, 1); e.Identity != "c" {
		t.Fatalf("forward over stale entry: got %q, want c", e.Identity)
	}
}

func TestAllStaleBehavesAsBoundary(t *testing.T) {
	h := NewHistory(func(notify.Handle) bool { return false })
	h.Push(1, entry(10, "a"))
	h.Push(1, entry(11, "b"))

	if _, err := h.Back(1); !errors.Is(err, ErrAtBoundary) {
		t.Errorf("back with only stale targets: %v", err)
	}
}

func TestPushCoalescesCurrentLocation(t *testing.T) {
	h := NewHistory(nil)
	h.Push(1, entry(10, "a"))
	h.Push(1, Entry{Identity: "a", Surface: 10, Anchor: 42})

	snap := h.Snapshot(1)
	if len(snap) != 1 {
		t.Fatalf("repeat visit stacked a duplicate: %d entries", len(snap))
	}
	if snap[0].Anchor != 42 {
		t.Errorf("coalesced entry kept the old anchor: %d", snap[0].Anchor)
	}
}

func TestLimitDropsOldest(t *testing.T) {
	h := NewHistory(nil, WithLimit(3))
	h.Push(1, entry(10, "a"))
	h.Push(1, entry(11, "b"))
	h.Push(1, entry(12, "c"))
	h.Push(1, entry(13, "d"))

	snap := h.Snapshot(1)
	if len(snap) != 3 || snap[0].Identity != "b" {
		t.Fatalf("unexpected stack after overflow: %+v", snap)
	}
	// Cursor still points at the newest entry.
	if e := mustBack(t, h, 1); e.Identity != "c" {
		t.Errorf("back after overflow: got %q, want c", e.Identity)
	}
}

func TestHostsAreIsolated(t *testing.T) {
	h := NewHistory(nil)
	h.Push(1, entry(10, "a"))
	h.Push(2, entry(20, "x"))
	h.Push(2, entry(21, "y"))

	if _, err := h.Back(1); !errors.Is(err, ErrAtBoundary) {
		t.Errorf("host 1 should have a single entry: %v", err)
	}
	if e := mustBack(t, h, 2); e.Identity != "x" {
		t.Errorf("host 2 back: got %q, want x", e.Identity)
	}

	h.Drop(2)
	if back, fwd := h.Depth(2); back != 0 || fwd != 0 {
		t.Errorf("dropped host still has depth %d/%d", back, fwd)
	}
}
