package visca

import (
	"fmt"

	"ptz-console/internal/ptz"
)

// Native speed ranges.
const (
	MinPanSpeed   = 1
	MaxPanSpeed   = 0x18
	MinTiltSpeed  = 1
	MaxTiltSpeed  = 0x14
	MaxZoomSpeed  = 7
	MaxFocusSpeed = 7
)

// Pan-tilt drive directions (01 06 01 VV WW XX YY).
const (
	dirLeft  = 0x01
	dirRight = 0x02
	dirUp    = 0x01
	dirDown  = 0x02
	dirStop  = 0x03
)

func (c *Camera) drive(panSpeed, tiltSpeed int, panDir, tiltDir byte) error {
	vv := byte(clampInt(panSpeed, MinPanSpeed, MaxPanSpeed))
	ww := byte(clampInt(tiltSpeed, MinTiltSpeed, MaxTiltSpeed))
	return c.command(0x01, 0x06, 0x01, vv, ww, panDir, tiltDir)
}

func (c *Camera) Up(speed int) error    { return c.drive(MinPanSpeed, speed, dirStop, dirUp) }
func (c *Camera) Down(speed int) error  { return c.drive(MinPanSpeed, speed, dirStop, dirDown) }
func (c *Camera) Left(speed int) error  { return c.drive(speed, MinTiltSpeed, dirLeft, dirStop) }
func (c *Camera) Right(speed int) error { return c.drive(speed, MinTiltSpeed, dirRight, dirStop) }

// Stop stops pan and tilt.
func (c *Camera) Stop() error {
	return c.drive(MinPanSpeed, MinTiltSpeed, dirStop, dirStop)
}

// ZoomIn zooms towards tele (01 04 07 2p).
func (c *Camera) ZoomIn(speed int) error {
	return c.command(0x01, 0x04, 0x07, 0x20|byte(clampInt(speed, 0, MaxZoomSpeed)))
}

// ZoomOut zooms towards wide (01 04 07 3p).
func (c *Camera) ZoomOut(speed int) error {
	return c.command(0x01, 0x04, 0x07, 0x30|byte(clampInt(speed, 0, MaxZoomSpeed)))
}

func (c *Camera) ZoomStop() error { return c.command(0x01, 0x04, 0x07, 0x00) }

func (c *Camera) FocusFar(speed int) error {
	return c.command(0x01, 0x04, 0x08, 0x20|byte(clampInt(speed, 0, MaxFocusSpeed)))
}

func (c *Camera) FocusNear(speed int) error {
	return c.command(0x01, 0x04, 0x08, 0x30|byte(clampInt(speed, 0, MaxFocusSpeed)))
}

func (c *Camera) FocusStop() error { return c.command(0x01, 0x04, 0x08, 0x00) }

// Autofocus switches focus to auto mode.
func (c *Camera) Autofocus() error { return c.command(0x01, 0x04, 0x38, 0x02) }

func (c *Camera) Home() error  { return c.command(0x01, 0x06, 0x04) }
func (c *Camera) Reset() error { return c.command(0x01, 0x06, 0x05) }

func (c *Camera) SetPower(on bool) error {
	if on {
		return c.command(0x01, 0x04, 0x00, 0x02)
	}
	return c.command(0x01, 0x04, 0x00, 0x03)
}

func (c *Camera) SetWhiteBalance(mode ptz.WhiteBalance) error {
	if mode < 0 || mode > 0x0F {
		return fmt.Errorf("white balance mode out of range: %d", int(mode))
	}
	return c.command(0x01, 0x04, 0x35, byte(mode))
}

// RecallPreset recalls a preset position (01 04 3F 02 pp).
func (c *Camera) RecallPreset(preset int) error {
	if preset < 0 || preset > 255 {
		return fmt.Errorf("preset must be 0-255")
	}
	return c.command(0x01, 0x04, 0x3F, 0x02, byte(preset))
}

// SavePreset stores the current position (01 04 3F 01 pp).
func (c *Camera) SavePreset(preset int) error {
	if preset < 0 || preset > 255 {
		return fmt.Errorf("preset must be 0-255")
	}
	return c.command(0x01, 0x04, 0x3F, 0x01, byte(preset))
}

func (c *Camera) Power() (ptz.Power, error) {
	b, err := c.inquiry(0x09, 0x04, 0x00)
	if err != nil {
		return ptz.PowerUnknown, err
	}
	if len(b) != 1 {
		return ptz.PowerUnknown, unexpected("power", b)
	}
	switch b[0] {
	case 0x02:
		return ptz.PowerOn, nil
	case 0x03:
		return ptz.PowerOff, nil
	}
	return ptz.PowerUnknown, unexpected("power", b)
}

func (c *Camera) WhiteBalance() (ptz.WhiteBalance, error) {
	b, err := c.inquiry(0x09, 0x04, 0x35)
	if err != nil {
		return 0, err
	}
	if len(b) != 1 {
		return 0, unexpected("white balance", b)
	}
	return ptz.WhiteBalance(b[0]), nil
}

func (c *Camera) WhiteBalanceName() (string, error) {
	wb, err := c.WhiteBalance()
	if err != nil {
		return "", err
	}
	return wb.String(), nil
}

// PanTiltPosition returns the signed pan and tilt positions.
func (c *Camera) PanTiltPosition() (int, int, error) {
	b, err := c.inquiry(0x09, 0x06, 0x12)
	if err != nil {
		return 0, 0, err
	}
	if len(b) != 8 {
		return 0, 0, unexpected("pan/tilt", b)
	}
	return signedNibbles(b[0:4]), signedNibbles(b[4:8]), nil
}

func (c *Camera) ZoomPosition() (int, error) {
	b, err := c.inquiry(0x09, 0x04, 0x47)
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, unexpected("zoom", b)
	}
	return int(nibbles(b)), nil
}

var videoFormats = map[byte]string{
	0x00: "1080p60",
	0x01: "1080p50",
	0x02: "1080i60",
	0x03: "1080i50",
	0x04: "720p60",
	0x05: "720p50",
	0x06: "1080p30",
	0x07: "1080p25",
	0x08: "720p30",
	0x09: "720p25",
	0x0A: "1080p59.94",
	0x0B: "1080i59.94",
	0x0C: "720p59.94",
	0x0D: "1080p29.97",
	0x0E: "720p29.97",
}

func (c *Camera) VideoFormat() (string, error) {
	b, err := c.inquiry(0x09, 0x06, 0x23)
	if err != nil {
		return "", err
	}
	if len(b) != 1 {
		return "", unexpected("video format", b)
	}
	if s, ok := videoFormats[b[0]]; ok {
		return s, nil
	}
	return fmt.Sprintf("Unknown (0x%02X)", b[0]), nil
}

var aeModes = map[byte]string{
	0x00: "Full Auto",
	0x03: "Manual",
	0x0A: "Shutter Priority",
	0x0B: "Iris Priority",
	0x0D: "Bright",
}

func (c *Camera) AEMode() (string, error) {
	b, err := c.inquiry(0x09, 0x04, 0x39)
	if err != nil {
		return "", err
	}
	if len(b) != 1 {
		return "", unexpected("AE mode", b)
	}
	if s, ok := aeModes[b[0]]; ok {
		return s, nil
	}
	return fmt.Sprintf("Unknown (0x%02X)", b[0]), nil
}

func unexpected(what string, b []byte) error {
	return fmt.Errorf("unexpected %s reply: % X", what, b)
}

// nibbles glues the low nibble of each byte into one value.
func nibbles(b []byte) uint16 {
	var v uint16
	for _, n := range b {
		v = v<<4 | uint16(n&0x0F)
	}
	return v
}

func signedNibbles(b []byte) int {
	return int(int16(nibbles(b)))
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
