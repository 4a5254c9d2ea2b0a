package session

import (
	"context"
	"time"

	"ptz-console/internal/connection"
	"ptz-console/internal/ptz"
	"ptz-console/internal/watchdog"
)

// Start launches the background cycle. Calling it more than once has no
// effect.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		ctx, o.cancel = context.WithCancel(ctx)
		o.done = make(chan struct{})
		go o.loop(ctx)
	})
}

// Close stops the background cycle, waits for it to exit, stops any motion
// still in progress and closes the session.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.startOnce.Do(func() {})
		if o.cancel != nil {
			o.cancel()
			<-o.done
		}
		if o.watchdog.Active() {
			o.conn.Hold(func(d connection.Device) {
				o.watchdog.Flush(func(a watchdog.Axis) error {
					return d.Do("stop."+a.String(), stopFor(a))
				})
			})
		}
		o.closeErr = o.conn.Disconnect()
	})
	return o.closeErr
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer close(o.done)
	t := time.NewTicker(o.tick)
	defer t.Stop()

	o.step()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			o.step()
		}
	}
}

// step is one cycle: poll (rate limited), drain one message, run the
// watchdog, publish.
func (o *Orchestrator) step() {
	snap := o.poller.Poll()
	o.poller.Drain()
	o.checkMotion()

	snap.Speeds = o.Speeds()
	o.snapshot.Store(&snap)

	entries, seq := o.activity.Since(o.logSeq)
	o.logSeq = seq
	for _, obs := range o.observersCopy() {
		obs.SnapshotPublished(snap)
		for _, e := range entries {
			obs.Logged(e)
		}
	}
}

var timeoutLabels = map[watchdog.Axis]string{
	watchdog.Movement: "Movement stopped (timeout)",
	watchdog.Zoom:     "Zoom stopped (timeout)",
	watchdog.Focus:    "Focus stopped (timeout)",
}

func (o *Orchestrator) checkMotion() {
	if !o.watchdog.Active() {
		return
	}
	now := o.now()
	failed := make(map[watchdog.Axis]error)
	var expired []watchdog.Axis
	o.conn.Hold(func(d connection.Device) {
		expired = o.watchdog.Tick(now, func(a watchdog.Axis) error {
			err := d.Do("auto_stop."+a.String(), stopFor(a))
			if err != nil {
				failed[a] = err
			}
			return err
		})
	})
	for _, a := range expired {
		if err, ok := failed[a]; ok {
			o.activity.Add("Auto-stop failed: " + err.Error())
			continue
		}
		if a == watchdog.Movement {
			o.setStatus("Movement stopped")
		}
		o.activity.Add(timeoutLabels[a])
	}
}

func stopFor(a watchdog.Axis) func(ptz.Camera) error {
	switch a {
	case watchdog.Zoom:
		return func(c ptz.Camera) error { return c.ZoomStop() }
	case watchdog.Focus:
		return func(c ptz.Camera) error { return c.FocusStop() }
	}
	return func(c ptz.Camera) error { return c.Stop() }
}
