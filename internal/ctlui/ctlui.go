// Copyright 2026 Open Commander Authors
// SPDX-License-Identifier: Apache-2.0

// Package ctlui is the operator TUI backing cmd/opencommander-ctl: a
// bubbletea list of a project's terminal sessions with keybindings to
// start, stop, and reset them directly against internal/session — the
// same role cmd/bureau-viewer plays for tmux sessions, minus that
// package's ticket-room plumbing this domain has no equivalent for.
package ctlui

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/open-commander/opencommander/internal/errkind"
	"github.com/open-commander/opencommander/internal/session"
	"github.com/open-commander/opencommander/internal/store"
)

var (
	styleHeader   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleSelected = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	styleRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleMuted    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Model is the bubbletea model. UserID is the operator identity used
// for session ownership checks (the admin id under disabled auth).
type Model struct {
	Store     store.Store
	Sessions  *session.Service
	ProjectID string
	UserID    string

	rows     []store.TerminalSession
	cursor   int
	status   string
	quitting bool
}

func NewModel(store store.Store, sessions *session.Service, projectID, userID string) Model {
	return Model{Store: store, Sessions: sessions, ProjectID: projectID, UserID: userID}
}

type rowsLoadedMsg struct {
	rows []store.TerminalSession
	err  error
}

type actionDoneMsg struct {
	status string
	err    error
}

func (m Model) Init() tea.Cmd {
	return m.loadRows
}

func (m Model) loadRows() tea.Msg {
	rows, err := m.Store.ListSessionsByProject(context.Background(), m.ProjectID)
	if err != nil {
		return rowsLoadedMsg{err: err}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rowsLoadedMsg{rows: rows}
}

func (m Model) startSelected(reset bool) tea.Cmd {
	if len(m.rows) == 0 {
		return nil
	}
	sess := m.rows[m.cursor]
	return func() tea.Msg {
		containerName, err := m.Sessions.Start(context.Background(), m.UserID, sess.ID, session.StartOptions{Reset: reset})
		if err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("started %s (container %s)", sess.Name, containerName)}
	}
}

func (m Model) stopSelected() tea.Cmd {
	if len(m.rows) == 0 {
		return nil
	}
	sess := m.rows[m.cursor]
	return func() tea.Msg {
		result, err := m.Sessions.Stop(context.Background(), sess.ID)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		if result.Err != "" {
			return actionDoneMsg{status: fmt.Sprintf("stop %s: %s", sess.Name, result.Err)}
		}
		return actionDoneMsg{status: fmt.Sprintf("stopped %s (removed=%v)", sess.Name, result.Removed)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case rowsLoadedMsg:
		if msg.err != nil {
			m.status = errkind.KindOf(msg.err).String() + ": " + msg.err.Error()
			return m, nil
		}
		m.rows = msg.rows
		if m.cursor >= len(m.rows) {
			m.cursor = max(0, len(m.rows)-1)
		}
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.status = errkind.KindOf(msg.err).String() + ": " + msg.err.Error()
		} else {
			m.status = msg.status
		}
		return m, m.loadRows

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, DefaultKeyMap.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, DefaultKeyMap.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, DefaultKeyMap.Down):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case key.Matches(msg, DefaultKeyMap.Refresh):
			return m, m.loadRows
		case key.Matches(msg, DefaultKeyMap.Start):
			return m, m.startSelected(false)
		case key.Matches(msg, DefaultKeyMap.Reset):
			return m, m.startSelected(true)
		case key.Matches(msg, DefaultKeyMap.Stop):
			return m, m.stopSelected()
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	view := styleHeader.Render(fmt.Sprintf("open commander — sessions for project %s", m.ProjectID)) + "\n\n"
	if len(m.rows) == 0 {
		view += styleMuted.Render("no sessions") + "\n"
	}
	for i, row := range m.rows {
		line := fmt.Sprintf("%-24s %-10s %s", row.Name, row.Status, row.ContainerName)
		switch row.Status {
		case store.SessionRunning:
			line = styleRunning.Render(line)
		case store.SessionError:
			line = styleError.Render(line)
		}
		if i == m.cursor {
			line = styleSelected.Render(fmt.Sprintf("> %-24s %-10s %s", row.Name, row.Status, row.ContainerName))
		}
		view += line + "\n"
	}

	view += "\n" + styleMuted.Render("j/k move · s start · R reset-start · x stop · r refresh · q quit") + "\n"
	if m.status != "" {
		view += m.status + "\n"
	}
	return view
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
