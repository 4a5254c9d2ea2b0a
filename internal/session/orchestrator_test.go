package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptz-console/internal/activity"
	"ptz-console/internal/ptz"
	"ptz-console/internal/ptz/ptztest"
	"ptz-console/internal/status"
	"ptz-console/internal/watchdog"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu        sync.Mutex
	snapshots []status.Snapshot
	lines     []string
}

func (r *recorder) SnapshotPublished(s status.Snapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, s)
	r.mu.Unlock()
}

func (r *recorder) Logged(e activity.Entry) {
	r.mu.Lock()
	r.lines = append(r.lines, e.Message)
	r.mu.Unlock()
}

type fixture struct {
	o      *Orchestrator
	cam    *ptztest.Camera
	dialer *ptztest.Dialer
	clock  *clock
	saved  []string
}

func newFixture(t *testing.T, connect bool) *fixture {
	t.Helper()
	f := &fixture{
		cam:   ptztest.NewCamera(),
		clock: &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.dialer = &ptztest.Dialer{Cameras: []*ptztest.Camera{f.cam}}
	f.o = New(Config{
		Target: "192.168.1.32:8234",
		Dialer: f.dialer.Dial,
		Now:    f.clock.now,
		OnConnected: func(target string, _ ptz.Speeds) error {
			f.saved = append(f.saved, target)
			return nil
		},
	})
	if connect {
		require.NoError(t, f.o.Connect(context.Background(), "192.168.1.32:8234"))
		f.cam.ResetCalls()
	}
	return f
}

func TestConnectReportsAndPersists(t *testing.T) {
	f := newFixture(t, true)
	assert.Equal(t, "Connected to 192.168.1.32:8234", f.o.StatusMessage())
	assert.Equal(t, []string{"192.168.1.32:8234"}, f.saved)
	assert.True(t, f.o.Connected())
}

func TestUnreachableTarget(t *testing.T) {
	f := newFixture(t, false)
	f.dialer.Cameras = nil

	err := f.o.Connect(context.Background(), "192.168.1.32:8234")
	require.Error(t, err)
	assert.True(t, ptz.IsConnectivity(err))
	assert.Contains(t, f.o.StatusMessage(), "Connection failed")
	assert.Empty(t, f.saved)

	f.o.step()
	s := f.o.Snapshot()
	assert.False(t, s.Connected)
	assert.Equal(t, "No camera connection", s.Error)
	assert.Empty(t, f.cam.Calls())
}

func TestCommandReconnectsOncePerCall(t *testing.T) {
	f := newFixture(t, false)
	f.dialer.Cameras = nil

	for i := 1; i <= 3; i++ {
		err := f.o.MoveLeft(context.Background())
		assert.True(t, ptz.IsConnectivity(err))
		assert.Equal(t, i, f.dialer.Attempts())
	}
	assert.False(t, f.o.watchdog.State(watchdog.Movement).Active())
}

func TestMoveLeftAutoStopsAfterTimeout(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.o.MoveLeft(context.Background()))
	assert.Equal(t, "Moving LEFT", f.o.StatusMessage())
	assert.Equal(t, []string{"left(5)"}, f.cam.Calls())
	assert.Equal(t, watchdog.Left, f.o.Axes()[watchdog.Movement].Mode)

	f.clock.advance(100 * time.Millisecond)
	f.o.checkMotion()
	assert.Equal(t, 0, f.cam.Count("stop"))

	f.clock.advance(60 * time.Millisecond)
	f.o.checkMotion()
	assert.Equal(t, 1, f.cam.Count("stop"))
	assert.Equal(t, "Movement stopped", f.o.StatusMessage())

	f.clock.advance(time.Second)
	f.o.checkMotion()
	assert.Equal(t, 1, f.cam.Count("stop"), "stopped exactly once")
}

func TestRepeatedPressesKeepMoving(t *testing.T) {
	f := newFixture(t, true)
	for i := 0; i < 10; i++ {
		require.NoError(t, f.o.ZoomIn(context.Background()))
		f.clock.advance(100 * time.Millisecond)
		f.o.checkMotion()
	}
	assert.Equal(t, 0, f.cam.Count("zoom_stop"))
	assert.Equal(t, 10, f.cam.Count("zoom_in(5)"))
}

func TestFailedCommandLeavesAxisUntouched(t *testing.T) {
	f := newFixture(t, true)
	f.cam.Fail("zoom_out", errors.New("not executable"))

	err := f.o.ZoomOut(context.Background())
	require.Error(t, err)
	assert.True(t, ptz.IsCommand(err))
	assert.Contains(t, f.o.StatusMessage(), "Error: ")
	assert.False(t, f.o.Axes()[watchdog.Zoom].Active())
	assert.True(t, f.o.Connected(), "command errors keep the session")
}

func TestAutoStopWithoutConnectionStillResets(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.o.FocusFar(context.Background()))
	f.cam.Drop()

	f.clock.advance(200 * time.Millisecond)
	f.o.checkMotion()
	assert.False(t, f.o.Axes()[watchdog.Focus].Active())
	assert.Equal(t, 0, f.cam.Count("focus_stop"))
	assert.Contains(t, f.o.Logs(1)[0].Message, "Auto-stop failed")
}

func TestStopClearsMessagesAndAxes(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.o.MoveUp(context.Background()))
	require.NoError(t, f.o.ZoomIn(context.Background()))
	f.o.messages.Push([]byte{0x90, 0x41, 0xFF})

	require.NoError(t, f.o.Stop(context.Background()))
	assert.Equal(t, "Stopped (cleared messages)", f.o.StatusMessage())
	assert.Empty(t, f.o.Messages(activity.DefaultMessageCapacity))
	for _, st := range f.o.Axes() {
		assert.False(t, st.Active())
	}
}

func TestClearBuffers(t *testing.T) {
	f := newFixture(t, true)
	f.o.messages.Push([]byte{0x90, 0x51, 0xFF})
	require.NoError(t, f.o.ClearBuffers(context.Background()))
	assert.Equal(t, 1, f.cam.Count("reset_input_buffer"))
	assert.Empty(t, f.o.Messages(activity.DefaultMessageCapacity))
}

func TestPanSpeedClamp(t *testing.T) {
	f := newFixture(t, false)
	for i := 0; i < 30; i++ {
		f.o.IncreaseSpeed(ptz.SpeedPan)
	}
	assert.Equal(t, 24, f.o.Speeds().Pan)
	assert.Equal(t, "Pan speed: 24", f.o.StatusMessage())
	assert.Empty(t, f.cam.Calls(), "speed changes never touch the device")

	for i := 0; i < 30; i++ {
		f.o.DecreaseSpeed(ptz.SpeedZoom)
	}
	assert.Equal(t, 0, f.o.Speeds().Zoom)
}

func TestSpeedsApplyToCommands(t *testing.T) {
	f := newFixture(t, true)
	f.o.IncreaseSpeed(ptz.SpeedTilt)
	require.NoError(t, f.o.MoveDown(context.Background()))
	assert.Equal(t, []string{"down(6)"}, f.cam.Calls())
}

func TestTogglePower(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.o.TogglePower(context.Background()))
	assert.Equal(t, []string{"power", "set_power(false)"}, f.cam.Calls())
	assert.Equal(t, "Power OFF", f.o.StatusMessage())

	f.cam.ResetCalls()
	f.cam.SetPowerState(ptz.PowerUnknown)
	require.NoError(t, f.o.TogglePower(context.Background()))
	assert.Equal(t, []string{"power"}, f.cam.Calls())
}

func TestCycleWhiteBalance(t *testing.T) {
	f := newFixture(t, true)
	for _, want := range []string{"Indoor", "Outdoor", "Auto"} {
		require.NoError(t, f.o.CycleWhiteBalance(context.Background()))
		assert.Equal(t, "White balance: "+want, f.o.StatusMessage())
	}
}

func TestStepPublishesSnapshotAndLogs(t *testing.T) {
	f := newFixture(t, true)
	rec := &recorder{}
	f.o.AddObserver(rec)
	f.cam.SetPosition(10, 20, 30)
	f.cam.QueueRaw([]byte{0x90, 0x51, 0xFF})

	f.o.step()
	s := f.o.Snapshot()
	assert.True(t, s.Connected)
	assert.Equal(t, 10, s.Pan)
	assert.Equal(t, ptz.DefaultSpeeds(), s.Speeds)
	assert.Len(t, f.o.Messages(activity.DefaultMessageCapacity), 1)
	assert.Empty(t, f.o.Messages(0))
	assert.Empty(t, f.o.Logs(0))

	require.Len(t, rec.snapshots, 1)
	assert.Contains(t, rec.lines, "Connected to 192.168.1.32:8234")
	assert.Contains(t, rec.lines, "Msg: 90 51 FF")

	n := len(rec.lines)
	f.o.step()
	assert.Len(t, rec.lines, n, "lines are delivered once")
}

func TestExecute(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, Execute(ctx, f.o, CmdHome, ""))
	require.NoError(t, Execute(ctx, f.o, CmdRecallPreset, "3"))
	require.NoError(t, Execute(ctx, f.o, CmdWhiteBalance, "outdoor"))
	assert.Equal(t, []string{"home", "recall_preset(3)", "set_white_balance(Outdoor)"}, f.cam.Calls())

	assert.Error(t, Execute(ctx, f.o, CmdRecallPreset, "x"))
	assert.Error(t, Execute(ctx, f.o, "dance", ""))
}

func TestStartAndClose(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.o.MoveRight(context.Background()))

	f.o.Start(context.Background())
	require.NoError(t, f.o.Close())
	assert.False(t, f.o.Connected())
	assert.Equal(t, 1, f.cam.Count("close"))
	assert.NoError(t, f.o.Close(), "close is idempotent")
}

func TestDisconnectAndReconnect(t *testing.T) {
	f := newFixture(t, true)
	second := ptztest.NewCamera()
	f.dialer.Cameras = []*ptztest.Camera{second}

	require.NoError(t, f.o.Disconnect())
	assert.Equal(t, "Disconnected", f.o.StatusMessage())

	require.NoError(t, f.o.Reconnect(context.Background()))
	assert.Equal(t, "Reconnected to 192.168.1.32:8234", f.o.StatusMessage())
	assert.True(t, f.o.Connected())
}
