package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/flynnfc/clocksync/pkg/clockface"
	"github.com/flynnfc/clocksync/pkg/timeclient"
)

const frameInterval = 100 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type frameMsg time.Time

type syncedMsg struct{ err error }

// model renders corrected time every frame. It only reads the manager;
// syncing happens in commands off the render path.
type model struct {
	mgr      *timeclient.Manager
	source   string
	now      time.Time
	lastErr  error
	syncing  bool
	location *time.Location
}

func newModel(mgr *timeclient.Manager, source string, loc *time.Location) model {
	return model{mgr: mgr, source: source, location: loc, now: mgr.CurrentTime().In(loc)}
}

func frame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (m model) resync() tea.Cmd {
	mgr := m.mgr
	return func() tea.Msg {
		_, err := mgr.Sync(context.Background())
		return syncedMsg{err: err}
	}
}

func (m model) Init() tea.Cmd {
	return frame()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if m.syncing {
				return m, nil
			}
			m.syncing = true
			return m, m.resync()
		}
	case frameMsg:
		m.now = m.mgr.CurrentTime().In(m.location)
		return m, frame()
	case syncedMsg:
		m.syncing = false
		m.lastErr = msg.err
	}
	return m, nil
}

func (m model) View() string {
	a := clockface.AnglesFor(m.now)
	date, clock := clockface.Labels(m.now)

	var b strings.Builder
	b.WriteString(renderDial(a, 8))
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render(clock) + "  " + date + "\n")

	state := "synced"
	if !m.mgr.Synced() {
		state = warnStyle.Render("local clock only")
	}
	if m.syncing {
		state += " (syncing...)"
	}
	fmt.Fprintf(&b, "source %s  offset %v  %s\n", m.source, m.mgr.Offset().Round(time.Millisecond), state)
	if m.lastErr != nil {
		b.WriteString(warnStyle.Render(m.lastErr.Error()) + "\n")
	}
	b.WriteString(dimStyle.Render("r resync · q quit") + "\n")
	return b.String()
}
