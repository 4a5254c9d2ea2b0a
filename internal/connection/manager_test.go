package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptz-console/internal/ptz"
	"ptz-console/internal/ptz/ptztest"
)

func newManager(d *ptztest.Dialer) (*Manager, *MemoryPublisher) {
	pub := NewMemoryPublisher()
	m := New(Config{Target: "192.168.1.32:8234", Dialer: d.Dial, Events: pub})
	return m, pub
}

func TestConnectSuccessReplacesSession(t *testing.T) {
	first, second := ptztest.NewCamera(), ptztest.NewCamera()
	m, pub := newManager(&ptztest.Dialer{Cameras: []*ptztest.Camera{first, second}})

	s1, err := m.Connect(context.Background(), "cam-a:1")
	require.NoError(t, err)
	assert.True(t, m.IsLive())
	assert.Equal(t, "cam-a:1", s1.Target)

	s2, err := m.Connect(context.Background(), "cam-b:1")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Same(t, s2, m.Session())
	assert.Equal(t, 1, first.Count("close"), "replaced handle is closed")
	assert.Equal(t, []string{EventConnected, EventConnected}, pub.Names())
}

func TestConnectFailureLeavesSessionUntouched(t *testing.T) {
	cam := ptztest.NewCamera()
	d := &ptztest.Dialer{Cameras: []*ptztest.Camera{cam}}
	m, pub := newManager(d)

	s, err := m.Connect(context.Background(), "cam:1")
	require.NoError(t, err)

	_, err = m.Connect(context.Background(), "nowhere:1")
	require.Error(t, err)
	assert.True(t, ptz.IsConnectivity(err))
	assert.Same(t, s, m.Session())
	assert.True(t, m.IsLive())
	assert.Equal(t, "nowhere:1", m.Target())
	assert.Equal(t, EventConnectFailed, pub.Names()[1])
}

func TestConnectRecoversDialerPanic(t *testing.T) {
	m := New(Config{Dialer: func(context.Context, string) (ptz.Camera, error) { panic("boom") }})
	_, err := m.Connect(context.Background(), "x:1")
	require.Error(t, err)
	assert.True(t, ptz.IsConnectivity(err))
	assert.False(t, m.IsLive())
}

func TestIsLiveFailsClosed(t *testing.T) {
	cam := ptztest.NewCamera()
	m, _ := newManager(&ptztest.Dialer{Cameras: []*ptztest.Camera{cam}})
	assert.False(t, m.IsLive(), "no session")

	_, err := m.Connect(context.Background(), "cam:1")
	require.NoError(t, err)
	assert.True(t, m.IsLive())

	cam.Fail("is_open", nil)
	assert.False(t, m.IsLive(), "probe panic counts as not live")

	cam.Heal("is_open")
	cam.Drop()
	assert.False(t, m.IsLive(), "silently closed transport")
}

func TestEnsureConnectedIsBounded(t *testing.T) {
	d := &ptztest.Dialer{}
	m, pub := newManager(d)

	for i := 1; i <= 3; i++ {
		assert.False(t, m.EnsureConnected(context.Background()))
		assert.Equal(t, i, d.Attempts(), "exactly one attempt per call")
	}
	assert.Equal(t, []string{"192.168.1.32:8234", "192.168.1.32:8234", "192.168.1.32:8234"}, d.Targets())
	assert.Contains(t, pub.Names(), EventReconnecting)
}

func TestEnsureConnectedCheapWhenLive(t *testing.T) {
	d := &ptztest.Dialer{Cameras: []*ptztest.Camera{ptztest.NewCamera()}}
	m, _ := newManager(d)
	require.True(t, m.EnsureConnected(context.Background()))
	require.True(t, m.EnsureConnected(context.Background()))
	assert.Equal(t, 1, d.Attempts())
}

func TestEnsureConnectedReconnectsDroppedSession(t *testing.T) {
	first, second := ptztest.NewCamera(), ptztest.NewCamera()
	d := &ptztest.Dialer{Cameras: []*ptztest.Camera{first, second}}
	m, _ := newManager(d)
	require.True(t, m.EnsureConnected(context.Background()))

	first.Drop()
	assert.True(t, m.EnsureConnected(context.Background()))
	assert.Equal(t, 2, d.Attempts())
}

func TestDisconnectTolerant(t *testing.T) {
	cam := ptztest.NewCamera()
	m, pub := newManager(&ptztest.Dialer{Cameras: []*ptztest.Camera{cam}})

	assert.NoError(t, m.Disconnect(), "no session")

	_, err := m.Connect(context.Background(), "cam:1")
	require.NoError(t, err)
	cam.Drop()
	assert.NoError(t, m.Disconnect())
	assert.Nil(t, m.Session())
	assert.False(t, m.IsLive())
	assert.True(t, m.EverConnected())
	assert.Equal(t, EventDisconnected, pub.Names()[len(pub.Names())-1])
}

func TestDoClassifiesErrors(t *testing.T) {
	cam := ptztest.NewCamera()
	m, _ := newManager(&ptztest.Dialer{Cameras: []*ptztest.Camera{cam}})

	err := m.Do("left", func(c ptz.Camera) error { return c.Left(5) })
	assert.True(t, ptz.IsConnectivity(err), "no session")
	assert.Equal(t, 0, cam.Count("left(5)"))

	_, err = m.Connect(context.Background(), "cam:1")
	require.NoError(t, err)

	require.NoError(t, m.Do("left", func(c ptz.Camera) error { return c.Left(5) }))
	assert.Equal(t, 1, cam.Count("left(5)"))

	cam.Fail("home", errors.New("not executable"))
	err = m.Do("home", func(c ptz.Camera) error { return c.Home() })
	assert.True(t, ptz.IsCommand(err))
	assert.False(t, ptz.IsConnectivity(err))
	assert.True(t, m.IsLive())

	cam.CloseOnFailure()
	err = m.Do("home", func(c ptz.Camera) error { return c.Home() })
	assert.True(t, ptz.IsConnectivity(err))
	assert.False(t, m.IsLive())
}

func TestDoRecoversPanic(t *testing.T) {
	m, _ := newManager(&ptztest.Dialer{Cameras: []*ptztest.Camera{ptztest.NewCamera()}})
	_, err := m.Connect(context.Background(), "cam:1")
	require.NoError(t, err)

	err = m.Do("bad", func(ptz.Camera) error { panic("nil deref") })
	assert.True(t, ptz.IsCommand(err))
}

func TestHoldRunsSeveralCallsUnderOneGate(t *testing.T) {
	cam := ptztest.NewCamera()
	m, _ := newManager(&ptztest.Dialer{Cameras: []*ptztest.Camera{cam}})
	_, err := m.Connect(context.Background(), "cam:1")
	require.NoError(t, err)

	m.Hold(func(d Device) {
		assert.True(t, d.Live())
		var wb ptz.WhiteBalance
		require.NoError(t, d.Do("white_balance", func(c ptz.Camera) (err error) {
			wb, err = c.WhiteBalance()
			return err
		}))
		require.NoError(t, d.Do("set_white_balance", func(c ptz.Camera) error {
			return c.SetWhiteBalance(wb.Next())
		}))
	})
	assert.Equal(t, []string{"white_balance", "set_white_balance(Indoor)"}, cam.Calls())
}

// gatedPublisher issues a device call from inside Publish, which only works
// when events are delivered outside the device gate.
type gatedPublisher struct {
	m    *Manager
	errs chan error
}

func (p *gatedPublisher) Publish(e Event) {
	if e.Name != EventConnected && e.Name != EventDisconnected {
		return
	}
	p.errs <- p.m.Do("power", func(c ptz.Camera) error {
		_, err := c.Power()
		return err
	})
}

func TestEventsPublishedAfterGateReleased(t *testing.T) {
	cam := ptztest.NewCamera()
	pub := &gatedPublisher{errs: make(chan error, 2)}
	pub.m = New(Config{Target: "cam:1", Dialer: (&ptztest.Dialer{Cameras: []*ptztest.Camera{cam}}).Dial, Events: pub})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := pub.m.Connect(context.Background(), "cam:1")
		assert.NoError(t, err)
		assert.NoError(t, pub.m.Disconnect())
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event delivery held the device gate")
	}

	assert.NoError(t, <-pub.errs, "connected event sees the new session")
	assert.True(t, ptz.IsConnectivity(<-pub.errs), "disconnected event sees no session")
}
