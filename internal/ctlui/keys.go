// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

package ctlui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines every key binding the session list responds to,
// grounded on lib/ticketui's KeyMap for this corpus's bubbletea
// convention (vim-style navigation alongside arrow keys, key.Binding
// per action rather than a raw string switch).
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Refresh  key.Binding
	Start    key.Binding
	Reset    key.Binding
	Stop     key.Binding
	Quit     key.Binding
}

var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Start: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start"),
	),
	Reset: key.NewBinding(
		key.WithKeys("R"),
		key.WithHelp("R", "reset-start"),
	),
	Stop: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "stop"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}
