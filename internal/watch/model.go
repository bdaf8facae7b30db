// Package watch is a terminal view over a client.Synchronizer.
package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"reliefdesk/internal/client"
)

// Source is the part of *client.Synchronizer the view drives.
type Source interface {
	Entries() []client.Entry
	Unread() int64
	Mode() client.Mode
	Alerts() <-chan client.Alert
	MarkRead(ctx context.Context, ids []int64) error
	MarkAllRead(ctx context.Context) error
	Resync(ctx context.Context) error
}

const (
	redrawEvery = time.Second
	opTimeout   = 10 * time.Second
)

type (
	alertMsg  client.Alert
	redrawMsg struct{}
	opDoneMsg struct{ err error }
)

type Model struct {
	src    Source
	keys   KeyMap
	cursor int
	width  int
	height int
	last   string
	err    error
}

func New(src Source) Model {
	return Model{src: src, keys: DefaultKeyMap(), width: 80, height: 24}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitAlert(), redraw())
}

func (m Model) waitAlert() tea.Cmd {
	alerts := m.src.Alerts()
	return func() tea.Msg {
		a, ok := <-alerts
		if !ok {
			return nil
		}
		return alertMsg(a)
	}
}

func redraw() tea.Cmd {
	return tea.Tick(redrawEvery, func(time.Time) tea.Msg { return redrawMsg{} })
}

func (m Model) run(op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return opDoneMsg{err: op(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case alertMsg:
		m.last = msg.Item.Title
		return m, m.waitAlert()

	case redrawMsg:
		return m, redraw()

	case opDoneMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		entries := m.src.Entries()
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(entries)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.MarkRead):
			if m.cursor < len(entries) {
				id := entries[m.cursor].Item.ID
				return m, m.run(func(ctx context.Context) error { return m.src.MarkRead(ctx, []int64{id}) })
			}
		case key.Matches(msg, m.keys.MarkAll):
			return m, m.run(m.src.MarkAllRead)
		case key.Matches(msg, m.keys.Refresh):
			return m, m.run(m.src.Resync)
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("reliefdesk · %d unread", m.src.Unread())))
	b.WriteString("\n\n")

	entries := m.src.Entries()
	if len(entries) == 0 {
		b.WriteString(itemStyle.Render("No notifications"))
		b.WriteString("\n")
	}
	rows := max(1, m.height-6)
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	for i := start; i < len(entries) && i < start+rows; i++ {
		b.WriteString(m.renderEntry(entries[i], i == m.cursor))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	status := fmt.Sprintf("mode: %s", m.src.Mode())
	if m.last != "" {
		status += " · new: " + m.last
	}
	b.WriteString(statusBarStyle.Render(status))
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.err.Error()))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(helpLine(m.keys.help())))
	return b.String()
}

func (m Model) renderEntry(e client.Entry, selected bool) string {
	marker := "●"
	switch e.State {
	case client.ItemPending:
		marker = "◌"
	case client.ItemConfirmed:
		marker = " "
	}
	line := fmt.Sprintf("%s %s %s  %s",
		marker,
		priorityStyle(e.Item.Priority).Render(string(e.Item.Priority)),
		e.Item.CreatedAt.Local().Format("Jan 02 15:04"),
		e.Item.Title,
	)
	switch {
	case selected:
		return selectedStyle.Render(line)
	case e.State == client.ItemConfirmed:
		return itemStyle.Inherit(readStyle).Render(line)
	default:
		return itemStyle.Render(line)
	}
}

func helpLine(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " · ")
}
