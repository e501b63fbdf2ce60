package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Submit   key.Binding
	Next     key.Binding
	Prev     key.Binding
	Activate key.Binding
	ScrollUp key.Binding
	ScrollDn key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "ask / run :command")),
		Next:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next time")),
		Prev:     key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev time")),
		Activate: key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("ctrl+g", "jump to time")),
		ScrollUp: key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDn: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		Quit:     key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Next, k.Activate, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Next, k.Prev, k.Activate},
		{k.ScrollUp, k.ScrollDn, k.Quit},
	}
}
