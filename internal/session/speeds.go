package session

import (
	"fmt"

	"ptz-console/internal/ptz"
)

// Speeds returns the current speed settings.
func (o *Orchestrator) Speeds() ptz.Speeds {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.speeds
}

// IncreaseSpeed raises axis by one, saturating at its maximum, and returns
// the new value. It never talks to the device.
func (o *Orchestrator) IncreaseSpeed(axis ptz.SpeedAxis) int {
	return o.adjustSpeed(axis, 1)
}

// DecreaseSpeed lowers axis by one, saturating at its minimum.
func (o *Orchestrator) DecreaseSpeed(axis ptz.SpeedAxis) int {
	return o.adjustSpeed(axis, -1)
}

func (o *Orchestrator) adjustSpeed(axis ptz.SpeedAxis, delta int) int {
	o.mu.Lock()
	o.speeds = o.speeds.With(axis, o.speeds.Get(axis)+delta)
	v := o.speeds.Get(axis)
	o.mu.Unlock()

	o.report(fmt.Sprintf("%s speed: %d", axis.Label(), v))
	return v
}
