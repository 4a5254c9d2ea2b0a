package session

import (
	"context"
	"fmt"

	"ptz-console/internal/connection"
	"ptz-console/internal/ptz"
	"ptz-console/internal/watchdog"
)

// run is the fixed command protocol: make sure the session is live, issue
// one device call through the gate, and on success run after (still under
// the gate) and report label. On failure the error is reported and after is
// not run, leaving the watchdog untouched.
func (o *Orchestrator) run(ctx context.Context, op, label string, fn func(ptz.Camera) error, after func()) error {
	if !o.conn.EnsureConnected(ctx) {
		return &ptz.ConnectivityError{Target: o.conn.Target(), Err: ptz.ErrNotConnected}
	}
	var err error
	o.conn.Hold(func(d connection.Device) {
		if err = d.Do(op, fn); err == nil && after != nil {
			after()
		}
	})
	return o.finish(op, label, err)
}

func (o *Orchestrator) finish(op, label string, err error) error {
	if err != nil {
		o.log.Warn().Err(err).Str("op", op).Msg("command failed")
		o.report(fmt.Sprintf("Error: %v", err))
		return err
	}
	o.log.Debug().Str("op", op).Msg(label)
	o.report(label)
	return nil
}

func (o *Orchestrator) move(ctx context.Context, mode watchdog.Mode, label string, fn func(ptz.Camera, ptz.Speeds) error) error {
	axis, _ := mode.Axis()
	speeds := o.Speeds()
	return o.run(ctx, string(mode), label,
		func(c ptz.Camera) error { return fn(c, speeds) },
		func() { o.watchdog.Start(axis, mode) })
}

func (o *Orchestrator) MoveUp(ctx context.Context) error {
	return o.move(ctx, watchdog.Up, "Moving UP", func(c ptz.Camera, s ptz.Speeds) error { return c.Up(s.Tilt) })
}

func (o *Orchestrator) MoveDown(ctx context.Context) error {
	return o.move(ctx, watchdog.Down, "Moving DOWN", func(c ptz.Camera, s ptz.Speeds) error { return c.Down(s.Tilt) })
}

func (o *Orchestrator) MoveLeft(ctx context.Context) error {
	return o.move(ctx, watchdog.Left, "Moving LEFT", func(c ptz.Camera, s ptz.Speeds) error { return c.Left(s.Pan) })
}

func (o *Orchestrator) MoveRight(ctx context.Context) error {
	return o.move(ctx, watchdog.Right, "Moving RIGHT", func(c ptz.Camera, s ptz.Speeds) error { return c.Right(s.Pan) })
}

// Stop stops pan/tilt, resets every axis and clears the incoming message
// queue.
func (o *Orchestrator) Stop(ctx context.Context) error {
	return o.run(ctx, "stop", "Stopped (cleared messages)",
		func(c ptz.Camera) error { return c.Stop() },
		func() {
			o.watchdog.StopAll()
			o.messages.Clear()
		})
}

func (o *Orchestrator) ZoomIn(ctx context.Context) error {
	return o.move(ctx, watchdog.In, "Zooming IN", func(c ptz.Camera, s ptz.Speeds) error { return c.ZoomIn(s.Zoom) })
}

func (o *Orchestrator) ZoomOut(ctx context.Context) error {
	return o.move(ctx, watchdog.Out, "Zooming OUT", func(c ptz.Camera, s ptz.Speeds) error { return c.ZoomOut(s.Zoom) })
}

func (o *Orchestrator) ZoomStop(ctx context.Context) error {
	return o.run(ctx, "zoom_stop", "Zoom STOP",
		func(c ptz.Camera) error { return c.ZoomStop() },
		func() { o.watchdog.Stop(watchdog.Zoom) })
}

func (o *Orchestrator) FocusNear(ctx context.Context) error {
	return o.move(ctx, watchdog.Near, "Focus NEAR", func(c ptz.Camera, s ptz.Speeds) error { return c.FocusNear(s.Focus) })
}

func (o *Orchestrator) FocusFar(ctx context.Context) error {
	return o.move(ctx, watchdog.Far, "Focus FAR", func(c ptz.Camera, s ptz.Speeds) error { return c.FocusFar(s.Focus) })
}

func (o *Orchestrator) FocusStop(ctx context.Context) error {
	return o.run(ctx, "focus_stop", "Focus STOP",
		func(c ptz.Camera) error { return c.FocusStop() },
		func() { o.watchdog.Stop(watchdog.Focus) })
}

func (o *Orchestrator) Autofocus(ctx context.Context) error {
	return o.run(ctx, "autofocus", "Autofocus enabled", func(c ptz.Camera) error { return c.Autofocus() }, nil)
}

func (o *Orchestrator) Home(ctx context.Context) error {
	return o.run(ctx, "home", "Going HOME", func(c ptz.Camera) error { return c.Home() }, nil)
}

func (o *Orchestrator) Reset(ctx context.Context) error {
	return o.run(ctx, "reset", "Camera RESET", func(c ptz.Camera) error { return c.Reset() }, nil)
}

// ClearBuffers discards the device input buffer and the incoming message
// queue.
func (o *Orchestrator) ClearBuffers(ctx context.Context) error {
	return o.run(ctx, "reset_input_buffer", "Buffer & messages CLEARED",
		func(c ptz.Camera) error { return c.ResetInputBuffer() },
		func() { o.messages.Clear() })
}

func (o *Orchestrator) SetWhiteBalance(ctx context.Context, mode ptz.WhiteBalance) error {
	return o.run(ctx, "set_white_balance", "White balance: "+mode.String(),
		func(c ptz.Camera) error { return c.SetWhiteBalance(mode) }, nil)
}

func (o *Orchestrator) RecallPreset(ctx context.Context, preset int) error {
	return o.run(ctx, "recall_preset", fmt.Sprintf("Recalling preset %d", preset),
		func(c ptz.Camera) error { return c.RecallPreset(preset) }, nil)
}

// TogglePower reads the power state and sets the opposite. An unknown state
// is left unchanged.
func (o *Orchestrator) TogglePower(ctx context.Context) error {
	if !o.conn.EnsureConnected(ctx) {
		return &ptz.ConnectivityError{Target: o.conn.Target(), Err: ptz.ErrNotConnected}
	}
	var (
		label string
		err   error
	)
	o.conn.Hold(func(d connection.Device) {
		var p ptz.Power
		err = d.Do("power", func(c ptz.Camera) (err error) {
			p, err = c.Power()
			return err
		})
		if err != nil {
			return
		}
		switch p {
		case ptz.PowerOn:
			label = "Power OFF"
			err = d.Do("set_power", func(c ptz.Camera) error { return c.SetPower(false) })
		case ptz.PowerOff:
			label = "Power ON"
			err = d.Do("set_power", func(c ptz.Camera) error { return c.SetPower(true) })
		default:
			label = "Power state unknown - not changed"
		}
	})
	return o.finish("toggle_power", label, err)
}

// CycleWhiteBalance moves auto -> indoor -> outdoor -> auto; any other mode
// goes to auto. The read and the set happen under one gate acquisition.
func (o *Orchestrator) CycleWhiteBalance(ctx context.Context) error {
	if !o.conn.EnsureConnected(ctx) {
		return &ptz.ConnectivityError{Target: o.conn.Target(), Err: ptz.ErrNotConnected}
	}
	var (
		next ptz.WhiteBalance
		err  error
	)
	o.conn.Hold(func(d connection.Device) {
		var cur ptz.WhiteBalance
		err = d.Do("white_balance", func(c ptz.Camera) (err error) {
			cur, err = c.WhiteBalance()
			return err
		})
		if err != nil {
			return
		}
		next = cur.Next()
		err = d.Do("set_white_balance", func(c ptz.Camera) error { return c.SetWhiteBalance(next) })
	})
	return o.finish("cycle_white_balance", "White balance: "+next.String(), err)
}

// Connect opens a session to target.
func (o *Orchestrator) Connect(ctx context.Context, target string) error {
	o.setStatus(fmt.Sprintf("Connecting to %s...", target))
	_, err := o.conn.Connect(ctx, target)
	return err
}

// Reconnect reopens the session to the last-known target.
func (o *Orchestrator) Reconnect(ctx context.Context) error {
	target := o.conn.Target()
	o.setStatus(fmt.Sprintf("Reconnecting to %s...", target))
	o.activity.Add("Reconnecting to " + target)
	if _, err := o.conn.Connect(ctx, target); err != nil {
		return err
	}
	o.setStatus("Reconnected to " + target)
	return nil
}

// Disconnect closes the session and forgets any motion in progress.
func (o *Orchestrator) Disconnect() error {
	err := o.conn.Disconnect()
	o.watchdog.StopAll()
	return err
}

// SetTarget changes the target used by the next connect.
func (o *Orchestrator) SetTarget(target string) {
	o.conn.SetTarget(target)
	o.report("Connection string updated: " + target)
}
