package watch

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Down     key.Binding
	Up       key.Binding
	MarkRead key.Binding
	MarkAll  key.Binding
	Refresh  key.Binding
	Quit     key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		MarkRead: key.NewBinding(
			key.WithKeys("enter", "m"),
			key.WithHelp("enter", "mark read"),
		),
		MarkAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "mark all read"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k KeyMap) help() []key.Binding {
	return []key.Binding{k.Down, k.Up, k.MarkRead, k.MarkAll, k.Refresh, k.Quit}
}
