package status

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptz-console/internal/activity"
	"ptz-console/internal/connection"
	"ptz-console/internal/ptz"
	"ptz-console/internal/ptz/ptztest"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type fixture struct {
	cam      *ptztest.Camera
	dialer   *ptztest.Dialer
	conn     *connection.Manager
	poller   *Poller
	clock    *clock
	log      *activity.Log
	messages *activity.Queue
}

func newFixture(t *testing.T, connect bool) *fixture {
	t.Helper()
	f := &fixture{
		cam:      ptztest.NewCamera(),
		clock:    &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		log:      activity.NewLog(activity.DefaultLogCapacity),
		messages: activity.NewQueue(activity.DefaultMessageCapacity),
	}
	f.dialer = &ptztest.Dialer{Cameras: []*ptztest.Camera{f.cam}}
	f.conn = connection.New(connection.Config{Target: "cam:1", Dialer: f.dialer.Dial})
	f.poller = NewPoller(Config{
		Conn:     f.conn,
		Activity: f.log,
		Messages: f.messages,
		Now:      f.clock.now,
	})
	if connect {
		_, err := f.conn.Connect(context.Background(), "cam:1")
		require.NoError(t, err)
	}
	return f
}

func TestPollReadsEveryField(t *testing.T) {
	f := newFixture(t, true)
	f.cam.SetPosition(-120, 45, 1024)

	s := f.poller.Poll()
	assert.True(t, s.Connected)
	assert.Equal(t, ptz.PowerOn, s.Power)
	assert.Equal(t, -120, s.Pan)
	assert.Equal(t, 45, s.Tilt)
	assert.Equal(t, 1024, s.Zoom)
	assert.Equal(t, "1080p30", s.VideoFormat)
	assert.Equal(t, "Full Auto", s.AEMode)
	assert.Equal(t, "Auto", s.WhiteBalance)
	assert.Empty(t, s.Error)
	assert.Equal(t, f.conn.Session().ID.String(), s.SessionID)
}

func TestPollIsRateLimited(t *testing.T) {
	f := newFixture(t, true)

	first := f.poller.Poll()
	queries := len(f.cam.Calls())
	require.Positive(t, queries)

	f.clock.t = f.clock.t.Add(200 * time.Millisecond)
	f.cam.SetPosition(10, 10, 10)
	assert.Equal(t, first, f.poller.Poll(), "cached snapshot within the interval")
	assert.Len(t, f.cam.Calls(), queries, "no device queries within the interval")

	f.clock.t = f.clock.t.Add(300 * time.Millisecond)
	s := f.poller.Poll()
	assert.Equal(t, 10, s.Pan)
	assert.Len(t, f.cam.Calls(), 2*queries)
}

func TestPollPartialFailureUsesSentinels(t *testing.T) {
	f := newFixture(t, true)
	f.cam.SetPosition(5, 6, 7)
	f.cam.Fail("video_format", errors.New("decode error"))
	f.cam.Fail("power", nil)

	s := f.poller.Poll()
	assert.True(t, s.Connected)
	assert.Equal(t, UnknownString, s.VideoFormat)
	assert.Equal(t, ptz.PowerUnknown, s.Power)
	assert.Equal(t, 5, s.Pan)
	assert.Equal(t, 7, s.Zoom)
	assert.Equal(t, "Full Auto", s.AEMode)
	assert.Empty(t, s.Error)
}

func TestPollConnectivityErrorAborts(t *testing.T) {
	f := newFixture(t, true)
	f.cam.CloseOnFailure()
	f.cam.Fail("zoom", errors.New("EOF"))

	s := f.poller.Poll()
	assert.False(t, s.Connected)
	assert.NotEmpty(t, s.Error)
	assert.Equal(t, 0, f.cam.Count("video_format"), "remaining fields are skipped")
}

func TestPollUnreachableTargetMakesNoQueries(t *testing.T) {
	f := newFixture(t, false)
	f.dialer.Cameras = nil

	_, err := f.conn.Connect(context.Background(), "192.168.1.32:8234")
	require.Error(t, err)
	assert.True(t, ptz.IsConnectivity(err))

	s := f.poller.Poll()
	assert.False(t, s.Connected)
	assert.Equal(t, "No camera connection", s.Error)
	assert.Empty(t, f.cam.Calls())
}

func TestPollAfterConnectionLost(t *testing.T) {
	f := newFixture(t, true)
	f.cam.Drop()

	s := f.poller.Poll()
	assert.False(t, s.Connected)
	assert.Equal(t, "Connection lost - will reconnect on next action", s.Error)
	assert.Empty(t, f.cam.Calls())
}

func TestInvalidateForcesQuery(t *testing.T) {
	f := newFixture(t, true)
	f.poller.Poll()
	f.cam.ResetCalls()

	f.poller.Invalidate()
	f.poller.Poll()
	assert.Equal(t, 1, f.cam.Count("power"))
}

func TestTruncate(t *testing.T) {
	short := strings.Repeat("a", 100)
	assert.Equal(t, short, truncate(short))

	long := strings.Repeat("b", 150)
	got := truncate(long)
	assert.Len(t, got, 100)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("b", 97), strings.TrimSuffix(got, "..."))
}

func TestDrainQueuesAndLogs(t *testing.T) {
	f := newFixture(t, true)

	assert.Nil(t, f.poller.Drain(), "nothing waiting")
	assert.Equal(t, 0, f.log.Len())

	f.cam.QueueRaw([]byte{0x90, 0x41, 0xFF})
	got := f.poller.Drain()
	assert.Equal(t, []byte{0x90, 0x41, 0xFF}, got)
	assert.Equal(t, 1, f.messages.Len())
	assert.Equal(t, "Msg: 90 41 FF", f.log.Tail(1)[0].Message)
}

func TestDrainIsNotRateLimited(t *testing.T) {
	f := newFixture(t, true)
	for i := 0; i < 12; i++ {
		f.cam.QueueRaw([]byte{0x90, byte(0x50 + i%3), 0xFF})
	}
	for i := 0; i < 12; i++ {
		require.NotNil(t, f.poller.Drain())
	}
	assert.Equal(t, activity.DefaultMessageCapacity, f.messages.Len())
}

func TestDrainSkipsWhenNotLive(t *testing.T) {
	f := newFixture(t, false)
	assert.Nil(t, f.poller.Drain())
	assert.Empty(t, f.cam.Calls())
}

// blockingCamera holds its first Power inquiry until release is closed.
type blockingCamera struct {
	*ptztest.Camera
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *blockingCamera) Power() (ptz.Power, error) {
	c.once.Do(func() { close(c.entered) })
	<-c.release
	return c.Camera.Power()
}

func TestInvalidateDuringPollDoesNotBlock(t *testing.T) {
	cam := &blockingCamera{Camera: ptztest.NewCamera(), entered: make(chan struct{}), release: make(chan struct{})}
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	conn := connection.New(connection.Config{
		Target: "cam:1",
		Dialer: func(context.Context, string) (ptz.Camera, error) { return cam, nil },
	})
	_, err := conn.Connect(context.Background(), "cam:1")
	require.NoError(t, err)
	p := NewPoller(Config{Conn: conn, Now: clk.now})

	polled := make(chan Snapshot, 1)
	go func() { polled <- p.Poll() }()
	<-cam.entered

	invalidated := make(chan struct{})
	go func() {
		p.Invalidate()
		close(invalidated)
	}()
	select {
	case <-invalidated:
	case <-time.After(time.Second):
		t.Fatal("Invalidate blocked behind an in-flight poll")
	}
	close(cam.release)

	select {
	case s := <-polled:
		assert.True(t, s.Connected)
	case <-time.After(time.Second):
		t.Fatal("poll did not finish")
	}

	cam.ResetCalls()
	p.Poll()
	assert.Equal(t, 1, cam.Count("power"), "invalidation during a poll forces the next one")
}
