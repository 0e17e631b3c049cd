// Package notify defines the raw notification stream published by the host
// shim and the debounce coordinator that coalesces notification bursts into
// settled deliveries.
package notify

import "time"

// Handle is an opaque editor-surface handle minted by the shim. It is stable
// for the lifetime of the surface and may be recycled by the window system
// for a different logical document afterwards.
type Handle uint64

// Kind identifies a raw notification from the host shim.
type Kind int

const (
	KindUnknown Kind = iota
	KindFocus
	KindContentModified
	KindSaveCommitted
	KindSurfaceCreated
	KindSurfaceDestroyed
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFocus:
		return "focus"
	case KindContentModified:
		return "content_modified"
	case KindSaveCommitted:
		return "save_committed"
	case KindSurfaceCreated:
		return "surface_created"
	case KindSurfaceDestroyed:
		return "surface_destroyed"
	default:
		return "unknown"
	}
}

// KindFromString parses a wire kind name. Unrecognized names map to
// KindUnknown; the stream carries no guarantees, so callers must tolerate
// junk.
func KindFromString(s string) Kind {
	switch s {
	case "focus":
		return KindFocus
	case "content_modified":
		return KindContentModified
	case "save_committed":
		return KindSaveCommitted
	case "surface_created":
		return KindSurfaceCreated
	case "surface_destroyed":
		return KindSurfaceDestroyed
	default:
		return KindUnknown
	}
}

// Notification is one raw window-system notification relayed by the shim.
// The stream makes no ordering or de-duplication promises: the same surface
// may announce focus twice, content changes arrive in bursts, and
// notifications for already-destroyed surfaces are possible.
type Notification struct {
	Kind    Kind
	Surface Handle
	PID     int
	Payload map[string]string
	Time    time.Time
}

// Class groups notification kinds that share a debounce window.
type Class int

const (
	ClassFocus Class = iota
	ClassSave
	ClassContent
)

// String returns a short display name for the class.
func (c Class) String() string {
	switch c {
	case ClassFocus:
		return "focus"
	case ClassSave:
		return "save"
	case ClassContent:
		return "content"
	default:
		return "unknown"
	}
}

// ClassOf maps a notification kind to its debounce class. Lifecycle kinds
// (surface created/destroyed) are not debounced and return false.
func ClassOf(k Kind) (Class, bool) {
	switch k {
	case KindFocus:
		return ClassFocus, true
	case KindSaveCommitted:
		return ClassSave, true
	case KindContentModified:
		return ClassContent, true
	default:
		return 0, false
	}
}
