package session

import (
	"ptz-console/internal/connection"
)

// eventSink turns connection lifecycle events into status messages and log
// lines. It runs after the device gate is released.
type eventSink struct{ o *Orchestrator }

func (s eventSink) Publish(e connection.Event) {
	o := s.o
	switch e.Name {
	case connection.EventConnected:
		o.report("Connected to " + e.Target)
		o.poller.Invalidate()
		if o.onConnected != nil {
			if err := o.onConnected(e.Target, o.Speeds()); err != nil {
				o.log.Warn().Err(err).Msg("save settings")
				o.activity.Add("Failed to save config: " + err.Error())
			}
		}
	case connection.EventConnectFailed:
		msg := "Connection failed"
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		o.report(msg)
	case connection.EventReconnecting:
		o.setStatus("Reconnecting...")
	case connection.EventDisconnected:
		o.report("Disconnected")
		o.poller.Invalidate()
	}
}
