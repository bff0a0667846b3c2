package console

import "github.com/charmbracelet/bubbles/key"

// KeyMap – горячие клавиши консоли оператора
type KeyMap struct {
	Quit    key.Binding
	Tab     key.Binding
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Resolve key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch view"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("f5", "ctrl+r"),
			key.WithHelp("f5", "refresh"),
		),
		Resolve: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "resolve"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// ShortHelp реализует help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Resolve, k.Refresh, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Tab},
		{k.Resolve, k.Confirm, k.Cancel},
		{k.Refresh, k.Quit},
	}
}
