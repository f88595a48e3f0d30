package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// keyMap holds all TUI key bindings.
type keyMap struct {
	Next     key.Binding
	Prev     key.Binding
	Replay   key.Binding
	Skip     key.Binding
	Accept   key.Binding
	Env      key.Binding
	Complete key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Next: key.NewBinding(
		key.WithKeys("right", "n"),
		key.WithHelp("→/n", "next"),
	),
	Prev: key.NewBinding(
		key.WithKeys("left", "p"),
		key.WithHelp("←/p", "prev"),
	),
	Replay: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "replay"),
	),
	Skip: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "skip"),
	),
	Accept: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "accept"),
	),
	Env: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "environment"),
	),
	Complete: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "complete item"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// keyBarText renders the hints that apply in the current mode.
func keyBarText(redirecting, asking bool) string {
	var shown []key.Binding
	switch {
	case asking:
		shown = []key.Binding{keys.Accept, keys.Skip, keys.Env, keys.Quit}
	case redirecting:
		shown = []key.Binding{keys.Skip, keys.Env, keys.Replay, keys.Quit}
	default:
		shown = []key.Binding{keys.Next, keys.Prev, keys.Replay, keys.Complete, keys.Env, keys.Quit}
	}
	parts := make([]string, 0, len(shown))
	for _, b := range shown {
		h := b.Help()
		parts = append(parts, keyStyle.Render(h.Key)+keyDescStyle.Render(":"+h.Desc))
	}
	return strings.Join(parts, "  ")
}
