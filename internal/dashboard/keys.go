package dashboard

import "github.com/charmbracelet/bubbles/key"

// navKeys holds key bindings for the navigation pane.
type navKeys struct {
	Up        key.Binding
	Down      key.Binding
	Enter     key.Binding
	Tab       key.Binding
	Reload    key.Binding
	ReloadAll key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// ShortHelp returns the navigation bindings for the help bar.
func (k navKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Tab, k.Reload, k.Help, k.Quit}
}

// FullHelp returns the navigation bindings grouped for expanded help.
func (k navKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Tab, k.Reload, k.ReloadAll},
		{k.Help, k.Quit},
	}
}

// contentKeys holds key bindings for the content pane.
type contentKeys struct {
	Up        key.Binding
	Down      key.Binding
	Prev      key.Binding
	Next      key.Binding
	Activate  key.Binding
	Tab       key.Binding
	Reload    key.Binding
	ReloadAll key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// ShortHelp returns the content bindings for the help bar.
func (k contentKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Activate, k.Tab, k.Reload, k.Help, k.Quit}
}

// FullHelp returns the content bindings grouped for expanded help.
func (k contentKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Prev, k.Next, k.Activate},
		{k.Tab, k.Reload, k.ReloadAll},
		{k.Help, k.Quit},
	}
}

var (
	tabKey = key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "switch pane"),
	)
	reloadKey = key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reload"),
	)
	reloadAllKey = key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "reload all"),
	)
	helpKey = key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	)
	quitKey = key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	)
)

// NavKeyMap returns the key bindings for the navigation pane.
func NavKeyMap() navKeys {
	return navKeys{
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
			key.WithHelp("enter", "open"),
		),
		Tab:       tabKey,
		Reload:    reloadKey,
		ReloadAll: reloadAllKey,
		Help:      helpKey,
		Quit:      quitKey,
	}
}

// ContentKeyMap returns the key bindings for the content pane.
func ContentKeyMap() contentKeys {
	return contentKeys{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
		Prev: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "prev action"),
		),
		Next: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "next action"),
		),
		Activate: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "activate"),
		),
		Tab:       tabKey,
		Reload:    reloadKey,
		ReloadAll: reloadAllKey,
		Help:      helpKey,
		Quit:      quitKey,
	}
}
