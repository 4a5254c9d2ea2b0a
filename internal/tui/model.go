// Package tui is the full-screen terminal console. It only renders what the
// session exposes and turns key presses into session commands.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ptz-console/internal/activity"
	"ptz-console/internal/ptz"
	"ptz-console/internal/session"
)

const (
	// RefreshInterval is how often the view is redrawn from the session.
	RefreshInterval = 100 * time.Millisecond

	logLines     = 30
	messageLines = 5
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	onlineStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	offlineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type tickMsg time.Time

// resultMsg reports a finished device command. Failures already reach the
// status line through the session, so the model only keeps the count.
type resultMsg struct{ err error }

// Model is the bubbletea model of the console.
type Model struct {
	ctx     context.Context
	console session.Console

	width    int
	pending  int
	failures int
	quitting bool
}

// New returns a model driving c. Commands run with ctx.
func New(ctx context.Context, c session.Console) Model {
	return Model{ctx: ctx, console: c}
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case resultMsg:
		m.pending--
		if msg.err != nil {
			m.failures++
		}
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "esc", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}

	b, ok := keymap[key]
	if !ok {
		return m, nil
	}
	if b.speed != nil {
		b.speed(m.console)
		return m, nil
	}

	m.pending++
	ctx, c, run := m.ctx, m.console, b.run
	return m, func() tea.Msg {
		return resultMsg{err: run(ctx, c)}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	c := m.console
	snap := c.Snapshot()
	speeds := c.Speeds()
	var b strings.Builder

	b.WriteString(titleStyle.Render("PTZ Camera Console"))
	b.WriteString("\n\n")

	state := offlineStyle.Render("DISCONNECTED")
	if snap.Connected {
		state = onlineStyle.Render("CONNECTED")
	}
	fmt.Fprintf(&b, "%s %s  %s\n", labelStyle.Render("Camera:"), c.Target(), state)

	fields := []string{
		field("Power", string(snap.Power)),
		field("Pan", fmt.Sprint(snap.Pan)),
		field("Tilt", fmt.Sprint(snap.Tilt)),
		field("Zoom", fmt.Sprint(snap.Zoom)),
		field("Video", snap.VideoFormat),
		field("AE", snap.AEMode),
		field("WB", snap.WhiteBalance),
	}
	b.WriteString(strings.Join(fields, "  "))
	b.WriteString("\n")
	if snap.Error != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Error:"), snap.Error)
	}

	var sp []string
	for _, a := range ptz.SpeedAxes {
		sp = append(sp, field(a.Label(), fmt.Sprint(speeds.Get(a))))
	}
	fmt.Fprintf(&b, "%s %s\n\n", labelStyle.Render("Speeds:"), strings.Join(sp, "  "))

	b.WriteString(statusStyle.Render(c.StatusMessage()))
	b.WriteString("\n\n")

	b.WriteString(boxStyle.Render(renderLog(c.Logs(logLines))))
	b.WriteString("\n")

	if msgs := c.Messages(messageLines); len(msgs) > 0 {
		b.WriteString(labelStyle.Render("Incoming:"))
		b.WriteString("\n")
		for _, raw := range msgs {
			b.WriteString("  " + activity.FormatMessage(raw) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(helpText))
	return b.String()
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + value
}

func renderLog(entries []activity.Entry) string {
	if len(entries) == 0 {
		return labelStyle.Render("(no activity)")
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Run starts the full-screen program and blocks until the user quits.
func Run(ctx context.Context, c session.Console) error {
	p := tea.NewProgram(New(ctx, c), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
