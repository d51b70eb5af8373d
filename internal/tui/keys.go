package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	PlayPause    key.Binding
	Stop         key.Binding
	PrevSentence key.Binding
	NextSentence key.Binding
	Rewind       key.Binding
	Forward      key.Binding
	Help         key.Binding
	Quit         key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PlayPause, k.PrevSentence, k.NextSentence, k.Forward, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.PlayPause, k.Stop},
		{k.PrevSentence, k.NextSentence},
		{k.Rewind, k.Forward},
		{k.Help, k.Quit},
	}
}

var keys = keyMap{
	PlayPause: key.NewBinding(
		key.WithKeys(" ", "p"),
		key.WithHelp("space", "play/pause"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop"),
	),
	PrevSentence: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←", "prev sentence"),
	),
	NextSentence: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→", "next sentence"),
	),
	Rewind: key.NewBinding(
		key.WithKeys("up", "k", "["),
		key.WithHelp("↑", "chapter start"),
	),
	Forward: key.NewBinding(
		key.WithKeys("down", "j", "]"),
		key.WithHelp("↓", "next chapter"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "Q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
