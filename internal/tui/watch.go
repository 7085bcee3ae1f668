// Package tui renders a live view of a task's event stream.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"boltbridge/internal/event"
)

// StreamEventMsg wraps one stream event for the bubbletea update loop.
type StreamEventMsg struct {
	Event event.StreamEvent
}

// StreamClosedMsg signals that the event channel was closed.
type StreamClosedMsg struct{}

// WatchModel is the bubbletea model for `boltbridge watch`.
type WatchModel struct {
	taskID  string
	events  <-chan event.StreamEvent
	spinner spinner.Model

	lines  []string
	status string
	done   bool
	width  int
	height int
}

// NewWatch creates a watch model reading from events until the channel
// closes.
func NewWatch(taskID string, events <-chan event.StreamEvent) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return WatchModel{
		taskID:  taskID,
		events:  events,
		spinner: sp,
		status:  "connecting",
	}
}

// waitForEvent blocks on the event channel as a bubbletea command.
func waitForEvent(events <-chan event.StreamEvent) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return StreamClosedMsg{}
		}
		return StreamEventMsg{Event: e}
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StreamEventMsg:
		m.apply(msg.Event)
		if m.done {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case StreamClosedMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

// apply folds one stream event into the model.
func (m *WatchModel) apply(e event.StreamEvent) {
	switch e.Type {
	case event.TypeConnected:
		m.status = "connected"

	case event.TypeTaskStatus:
		if s, ok := e.Data["status"].(string); ok {
			m.status = s
		}
		if p, ok := e.Data["progress"].(float64); ok {
			m.status = fmt.Sprintf("%s (%.0f%%)", m.status, p*100)
		}

	case event.TypeTaskProgress:
		if p, ok := e.Data["progress"].(float64); ok {
			m.lines = append(m.lines, mutedStyle.Render(fmt.Sprintf("progress: %.0f%%", p*100)))
		}

	case event.TypeTaskOutput:
		if content, ok := e.Data["content"].(string); ok {
			m.lines = append(m.lines, outputStyle.Render(content))
		}

	case event.TypeTaskCompletion:
		m.status = "completed"
		m.lines = append(m.lines, successStyle.Render("task completed"))
		if impl, ok := e.Data["implementation"].(string); ok && impl != "" {
			m.lines = append(m.lines, outputStyle.Render(impl))
		}
		m.done = true

	case event.TypeTaskError:
		m.status = "failed"
		code, _ := e.Data["code"].(string)
		message, _ := e.Data["message"].(string)
		m.lines = append(m.lines, errorStyle.Render(fmt.Sprintf("task failed [%s]: %s", code, message)))
		m.done = true

	case event.TypeError:
		message, _ := e.Data["message"].(string)
		m.lines = append(m.lines, errorStyle.Render("stream error: "+message))
	}
}

// View implements tea.Model.
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("boltbridge watch"))
	b.WriteString("  ")
	b.WriteString(mutedStyle.Render(m.taskID))
	b.WriteString("\n")
	if !m.done {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
	}
	b.WriteString(statusStyle.Render("status: " + m.status))
	b.WriteString("\n\n")

	// Show the tail that fits the terminal, leaving room for the chrome.
	lines := m.lines
	if m.height > 6 && len(lines) > m.height-6 {
		lines = lines[len(lines)-(m.height-6):]
	}
	for _, line := range lines {
		b.WriteString(truncate(line, m.width))
		b.WriteString("\n")
	}

	if !m.done {
		b.WriteString(helpStyle.Render("q: quit"))
	}

	return b.String()
}

// Done reports whether a terminal event was observed.
func (m WatchModel) Done() bool {
	return m.done
}

// truncate clips a styled line to maxWidth visual columns. ANSI escape
// sequences and wide characters are counted by rendered width, not bytes.
func truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return s
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}
