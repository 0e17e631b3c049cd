package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds every binding the dashboard reacts to.
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Enter      key.Binding
	Escape     key.Binding
	Tab        key.Binding
	Quit       key.Binding
	Filter     key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding

	FocusActivity    key.Binding
	FocusDiagnostics key.Binding

	NavBack    key.Binding
	NavForward key.Binding

	Rescan key.Binding
	Setup  key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next view"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Filter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "filter"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		FocusActivity: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "activity"),
		),
		FocusDiagnostics: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "diagnostics"),
		),
		NavBack: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "nav back"),
		),
		NavForward: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "nav forward"),
		),
		Rescan: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rescan"),
		),
		Setup: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "write shim config"),
		),
	}
}
