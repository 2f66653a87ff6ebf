package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all key bindings
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Left     key.Binding
	Right    key.Binding
	Tab      key.Binding
	Enter    key.Binding
	Add      key.Binding
	Edit     key.Binding
	Done     key.Binding
	Complete key.Binding
	Move     key.Binding
	Delete   key.Binding
	PrevWeek key.Binding
	NextWeek key.Binding
	ThisWeek key.Binding
	Search   key.Binding
	Help     key.Binding
	Quit     key.Binding
	Escape   key.Binding
	Refresh  key.Binding
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Left:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "days")),
	Right:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "cards")),
	Tab:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
	Enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select/toggle")),
	Add:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add card")),
	Edit:     key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit title")),
	Done:     key.NewBinding(key.WithKeys("x", " "), key.WithHelp("x", "toggle done")),
	Complete: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "complete")),
	Move:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "move to/from backlog")),
	Delete:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	PrevWeek: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "previous week")),
	NextWeek: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next week")),
	ThisWeek: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "today")),
	Search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Escape:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	Refresh:  key.NewBinding(key.WithKeys("r", "R"), key.WithHelp("r", "refresh")),
}
