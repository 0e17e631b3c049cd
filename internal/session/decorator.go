package session

import "github.com/nixlim/sqlsidecar/internal/notify"

// Decorator is the editor-services contract implemented by the host shim.
// Every method is keyed by surface handle; the shim resolves handles to live
// editors on its side. Calls may cross a process boundary, so implementations
// carry their own timeouts and return errors instead of blocking forever.
//
// All methods must be safe for concurrent use.
type Decorator interface {
	// Initialize performs the one-time editor hookup (event subclassing,
	// margin setup). The registry guarantees it runs at most once per
	// session generation.
	Initialize(h notify.Handle) error

	// Release undoes Initialize and drops any decorations. Best effort;
	// called when a session is removed.
	Release(h notify.Handle) error

	// ContentFingerprint returns a cheap digest of the surface's current
	// content. Identical content yields identical fingerprints within one
	// host lifetime.
	ContentFingerprint(h notify.Handle) (string, error)

	// Text returns a snapshot of the surface's full content.
	Text(h notify.Handle) (string, error)

	// Identity returns the logical document identity currently bound to the
	// surface (path or generated tab title). Empty means not yet known.
	Identity(h notify.Handle) (string, error)

	// SelectionNonEmpty reports whether the user currently has a non-empty
	// selection in the surface.
	SelectionNonEmpty(h notify.Handle) (bool, error)

	// Valid reports whether the handle still resolves to a live editor.
	Valid(h notify.Handle) bool

	// SetAnnotations replaces the engine-owned margin annotations.
	SetAnnotations(h notify.Handle, anns []Annotation) error

	// SetHighlights replaces the engine-owned text highlights.
	SetHighlights(h notify.Handle, hls []Highlight) error

	// ClearAnnotations removes all engine-owned decorations.
	ClearAnnotations(h notify.Handle) error

	// ViewState captures the cursor/scroll position.
	ViewState(h notify.Handle) (ViewState, error)

	// RestoreViewState repositions cursor and scroll without stealing focus.
	RestoreViewState(h notify.Handle, v ViewState) error

	// FoldState captures the collapsed regions.
	FoldState(h notify.Handle) (FoldState, error)

	// RestoreFoldState re-collapses the given regions.
	RestoreFoldState(h notify.Handle, f FoldState) error

	// Reveal focuses the surface and scrolls the line into view. Used by
	// navigation history traversal.
	Reveal(h notify.Handle, line int) error
}
