package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptz-console/internal/ptz/ptztest"
	"ptz-console/internal/session"
)

func newModel(t *testing.T) (Model, *ptztest.Camera, *session.Orchestrator) {
	t.Helper()
	cam := ptztest.NewCamera()
	dialer := &ptztest.Dialer{Cameras: []*ptztest.Camera{cam}}
	o := session.New(session.Config{Target: "cam:1", Dialer: dialer.Dial})
	require.NoError(t, o.Connect(context.Background(), "cam:1"))
	cam.ResetCalls()
	t.Cleanup(func() { o.Close() })
	return New(context.Background(), o), cam, o
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds key to the model and runs any command it returns to completion.
func press(t *testing.T, m Model, key tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(key)
	m = next.(Model)
	if cmd != nil {
		msg := cmd()
		if r, ok := msg.(resultMsg); ok {
			next, _ = m.Update(r)
			m = next.(Model)
		}
	}
	return m
}

func TestArrowAndActionKeys(t *testing.T) {
	m, cam, _ := newModel(t)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m = press(t, m, runes("+"))
	m = press(t, m, runes("z"))
	m = press(t, m, runes("]"))
	m = press(t, m, runes("x"))
	m = press(t, m, runes("h"))
	m = press(t, m, runes("7"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})

	assert.Equal(t, []string{
		"left(5)", "up(5)", "zoom_in(5)", "zoom_stop", "focus_far(5)", "focus_stop",
		"home", "recall_preset(7)", "stop",
	}, cam.Calls())
	assert.Zero(t, m.pending)
	assert.Zero(t, m.failures)
}

func TestSpeedKeysStayLocal(t *testing.T) {
	m, cam, o := newModel(t)

	m = press(t, m, runes("."))
	m = press(t, m, runes("."))
	m = press(t, m, runes("<"))
	m = press(t, m, runes("d"))
	press(t, m, runes("s"))

	s := o.Speeds()
	assert.Equal(t, 7, s.Pan)
	assert.Equal(t, 4, s.Tilt)
	assert.Equal(t, 6, s.Zoom)
	assert.Equal(t, 4, s.Focus)
	assert.Empty(t, cam.Calls())
	assert.Equal(t, "Focus speed: 4", o.StatusMessage())
}

func TestFailedCommandCounted(t *testing.T) {
	m, cam, _ := newModel(t)
	cam.Fail("home", nil)

	m = press(t, m, runes("h"))
	assert.Equal(t, 1, m.failures)
}

func TestDisconnectAndQuit(t *testing.T) {
	m, _, o := newModel(t)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlD})
	assert.Equal(t, "Disconnected", o.StatusMessage())

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, next.View())
}

func TestUnknownKeyIgnored(t *testing.T) {
	m, cam, _ := newModel(t)
	_, cmd := m.Update(runes("q"))
	assert.Nil(t, cmd)
	assert.Empty(t, cam.Calls())
}

func TestViewShowsState(t *testing.T) {
	m, _, o := newModel(t)
	o.IncreaseSpeed("pan")

	view := m.View()
	assert.Contains(t, view, "cam:1")
	assert.Contains(t, view, "Pan speed: 6")
	assert.Contains(t, view, "Connected to cam:1")
	assert.Contains(t, view, "esc quit")
}

func TestTickReschedules(t *testing.T) {
	m, _, _ := newModel(t)
	assert.NotNil(t, m.Init())
	_, cmd := m.Update(tickMsg{})
	assert.NotNil(t, cmd)
}
