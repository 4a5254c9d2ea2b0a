// Package ptztest provides an in-memory ptz.Camera for tests.
package ptztest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ptz-console/internal/ptz"
)

// ErrInjected is the default error returned by operations listed in Fail.
var ErrInjected = errors.New("injected failure")

// Camera records every call and answers inquiries from its fields.
type Camera struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]error
	closed bool
	raw    [][]byte

	power      ptz.Power
	wb         ptz.WhiteBalance
	pan, tilt  int
	zoom       int
	video      string
	ae         string
	closeOnErr bool
}

// NewCamera returns an open fake camera with power on and auto white balance.
func NewCamera() *Camera {
	return &Camera{
		fail:  make(map[string]error),
		power: ptz.PowerOn,
		wb:    ptz.WhiteBalanceAuto,
		video: "1080p30",
		ae:    "Full Auto",
	}
}

// Fail makes op return err (ErrInjected when err is nil).
func (c *Camera) Fail(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	c.fail[op] = err
}

// Heal removes an injected failure.
func (c *Camera) Heal(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.fail, op)
}

// CloseOnFailure makes any injected failure also mark the transport closed,
// the way a dropped socket behaves.
func (c *Camera) CloseOnFailure() {
	c.mu.Lock()
	c.closeOnErr = true
	c.mu.Unlock()
}

// Drop marks the transport closed without calling Close.
func (c *Camera) Drop() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// SetPosition sets the values reported by the position inquiries.
func (c *Camera) SetPosition(pan, tilt, zoom int) {
	c.mu.Lock()
	c.pan, c.tilt, c.zoom = pan, tilt, zoom
	c.mu.Unlock()
}

// SetPowerState sets the value reported by Power.
func (c *Camera) SetPowerState(p ptz.Power) {
	c.mu.Lock()
	c.power = p
	c.mu.Unlock()
}

// QueueRaw queues an unsolicited frame for ReadRaw.
func (c *Camera) QueueRaw(b []byte) {
	c.mu.Lock()
	c.raw = append(c.raw, b)
	c.mu.Unlock()
}

// Calls returns a copy of the recorded call names, e.g. "left(5)".
func (c *Camera) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// Count returns how many recorded calls equal name.
func (c *Camera) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == name {
			n++
		}
	}
	return n
}

// ResetCalls clears the recorded calls.
func (c *Camera) ResetCalls() {
	c.mu.Lock()
	c.calls = nil
	c.mu.Unlock()
}

func (c *Camera) record(op, call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	if err, ok := c.fail[op]; ok {
		if c.closeOnErr {
			c.closed = true
		}
		return err
	}
	return nil
}

func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "close")
	c.closed = true
	return nil
}

func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.fail["is_open"]; ok {
		panic(err)
	}
	return !c.closed
}

func (c *Camera) ReadRaw() ([]byte, error) {
	if err := c.record("read", "read"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.raw) == 0 {
		return nil, nil
	}
	b := c.raw[0]
	c.raw = c.raw[1:]
	return b, nil
}

func (c *Camera) Up(speed int) error {
	return c.record("up", fmt.Sprintf("up(%d)", speed))
}

func (c *Camera) Down(speed int) error {
	return c.record("down", fmt.Sprintf("down(%d)", speed))
}

func (c *Camera) Left(speed int) error {
	return c.record("left", fmt.Sprintf("left(%d)", speed))
}

func (c *Camera) Right(speed int) error {
	return c.record("right", fmt.Sprintf("right(%d)", speed))
}

func (c *Camera) Stop() error {
	return c.record("stop", "stop")
}

func (c *Camera) ZoomIn(speed int) error {
	return c.record("zoom_in", fmt.Sprintf("zoom_in(%d)", speed))
}

func (c *Camera) ZoomOut(speed int) error {
	return c.record("zoom_out", fmt.Sprintf("zoom_out(%d)", speed))
}

func (c *Camera) ZoomStop() error {
	return c.record("zoom_stop", "zoom_stop")
}

func (c *Camera) FocusNear(speed int) error {
	return c.record("focus_near", fmt.Sprintf("focus_near(%d)", speed))
}

func (c *Camera) FocusFar(speed int) error {
	return c.record("focus_far", fmt.Sprintf("focus_far(%d)", speed))
}
func (c *Camera) FocusStop() error {
	return c.record("focus_stop", "focus_stop")
}

func (c *Camera) Autofocus() error {
	return c.record("autofocus", "autofocus")
}

func (c *Camera) Home() error {
	return c.record("home", "home")
}

func (c *Camera) Reset() error {
	return c.record("reset", "reset")
}

func (c *Camera) ResetInputBuffer() error {
	return c.record("reset_input_buffer", "reset_input_buffer")
}

func (c *Camera) Power() (ptz.Power, error) {
	if err := c.record("power", "power"); err != nil {
		return ptz.PowerUnknown, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.power, nil
}

func (c *Camera) SetPower(on bool) error {
	if err := c.record("set_power", fmt.Sprintf("set_power(%t)", on)); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.power = ptz.PowerOn
	} else {
		c.power = ptz.PowerOff
	}
	return nil
}

func (c *Camera) WhiteBalance() (ptz.WhiteBalance, error) {
	if err := c.record("white_balance", "white_balance"); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wb, nil
}

func (c *Camera) SetWhiteBalance(mode ptz.WhiteBalance) error {
	if err := c.record("set_white_balance", fmt.Sprintf("set_white_balance(%s)", mode)); err != nil {
		return err
	}
	c.mu.Lock()
	c.wb = mode
	c.mu.Unlock()
	return nil
}

func (c *Camera) RecallPreset(preset int) error {
	return c.record("recall_preset", fmt.Sprintf("recall_preset(%d)", preset))
}

func (c *Camera) PanTiltPosition() (int, int, error) {
	if err := c.record("pan_tilt", "pan_tilt"); err != nil {
		return 0, 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pan, c.tilt, nil
}

func (c *Camera) ZoomPosition() (int, error) {
	if err := c.record("zoom", "zoom"); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom, nil
}

func (c *Camera) VideoFormat() (string, error) {
	if err := c.record("video_format", "video_format"); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.video, nil
}

func (c *Camera) AEMode() (string, error) {
	if err := c.record("ae_mode", "ae_mode"); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ae, nil
}

func (c *Camera) WhiteBalanceName() (string, error) {
	if err := c.record("white_balance_name", "white_balance_name"); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wb.String(), nil
}

// Dialer hands out cameras from a fixed sequence and counts attempts.
// When the sequence is exhausted, or Err is set, dialing fails.
type Dialer struct {
	mu       sync.Mutex
	Cameras  []*Camera
	Err      error
	attempts int
	targets  []string
}

// Dial implements ptz.Dialer.
func (d *Dialer) Dial(ctx context.Context, target string) (ptz.Camera, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	d.targets = append(d.targets, target)
	if d.Err != nil {
		return nil, d.Err
	}
	if len(d.Cameras) == 0 {
		return nil, errors.New("connection refused")
	}
	cam := d.Cameras[0]
	d.Cameras = d.Cameras[1:]
	return cam, nil
}

// Attempts returns the number of Dial calls so far.
func (d *Dialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Targets returns the targets passed to Dial.
func (d *Dialer) Targets() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.targets))
	copy(out, d.targets)
	return out
}

var _ ptz.Camera = (*Camera)(nil)
