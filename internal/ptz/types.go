package ptz

import "fmt"

// Power is the reported power state of the camera.
type Power string

const (
	PowerOn      Power = "ON"
	PowerOff     Power = "OFF"
	PowerUnknown Power = "UNKNOWN"
)

// WhiteBalance is a white balance mode as numbered by VISCA (CAM_WB).
type WhiteBalance int

const (
	WhiteBalanceAuto WhiteBalance = iota
	WhiteBalanceIndoor
	WhiteBalanceOutdoor
	WhiteBalanceOnePush
	WhiteBalanceATW
	WhiteBalanceManual
	WhiteBalanceOutdoorAuto
	WhiteBalanceSodiumLampAuto
	WhiteBalanceSodiumAuto
)

var whiteBalanceNames = map[WhiteBalance]string{
	WhiteBalanceAuto:           "Auto",
	WhiteBalanceIndoor:         "Indoor",
	WhiteBalanceOutdoor:        "Outdoor",
	WhiteBalanceOnePush:        "One Push",
	WhiteBalanceATW:            "ATW",
	WhiteBalanceManual:         "Manual",
	WhiteBalanceOutdoorAuto:    "Outdoor Auto",
	WhiteBalanceSodiumLampAuto: "Sodium Lamp Auto",
	WhiteBalanceSodiumAuto:     "Sodium Auto",
}

func (w WhiteBalance) String() string {
	if s, ok := whiteBalanceNames[w]; ok {
		return s
	}
	return fmt.Sprintf("Unknown (0x%02X)", int(w))
}

// Next returns the mode the console cycles to from w:
// auto -> indoor -> outdoor -> auto; anything else goes back to auto.
func (w WhiteBalance) Next() WhiteBalance {
	switch w {
	case WhiteBalanceAuto:
		return WhiteBalanceIndoor
	case WhiteBalanceIndoor:
		return WhiteBalanceOutdoor
	default:
		return WhiteBalanceAuto
	}
}

// ParseWhiteBalance maps a lower-case mode name to its value.
func ParseWhiteBalance(s string) (WhiteBalance, error) {
	switch s {
	case "auto":
		return WhiteBalanceAuto, nil
	case "indoor":
		return WhiteBalanceIndoor, nil
	case "outdoor":
		return WhiteBalanceOutdoor, nil
	case "onepush", "one_push":
		return WhiteBalanceOnePush, nil
	case "atw":
		return WhiteBalanceATW, nil
	case "manual":
		return WhiteBalanceManual, nil
	}
	return 0, fmt.Errorf("unknown white balance mode: %q", s)
}

// Speeds holds the operator speed settings for the four motors.
type Speeds struct {
	Pan   int `json:"pan"`
	Tilt  int `json:"tilt"`
	Zoom  int `json:"zoom"`
	Focus int `json:"focus"`
}

// DefaultSpeed is the initial value of every speed setting.
const DefaultSpeed = 5

// SpeedAxis names one of the four speed settings.
type SpeedAxis string

const (
	SpeedPan   SpeedAxis = "pan"
	SpeedTilt  SpeedAxis = "tilt"
	SpeedZoom  SpeedAxis = "zoom"
	SpeedFocus SpeedAxis = "focus"
)

// SpeedAxes lists the speed settings in display order.
var SpeedAxes = []SpeedAxis{SpeedPan, SpeedTilt, SpeedZoom, SpeedFocus}

// ParseSpeedAxis maps a name to its SpeedAxis.
func ParseSpeedAxis(s string) (SpeedAxis, error) {
	for _, a := range SpeedAxes {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown speed axis: %q", s)
}

// Label returns the capitalized axis name used in status messages.
func (a SpeedAxis) Label() string {
	switch a {
	case SpeedPan:
		return "Pan"
	case SpeedTilt:
		return "Tilt"
	case SpeedZoom:
		return "Zoom"
	case SpeedFocus:
		return "Focus"
	}
	return string(a)
}

// SpeedRange returns the inclusive range accepted for axis. Pan and tilt
// share one range; the VISCA encoder clamps them to what the device accepts.
func SpeedRange(a SpeedAxis) (min, max int) {
	switch a {
	case SpeedPan, SpeedTilt:
		return 0, 24
	default:
		return 0, 7
	}
}

// ClampSpeed limits v to the range of axis.
func ClampSpeed(a SpeedAxis, v int) int {
	lo, hi := SpeedRange(a)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DefaultSpeeds returns every speed at DefaultSpeed.
func DefaultSpeeds() Speeds {
	return Speeds{Pan: DefaultSpeed, Tilt: DefaultSpeed, Zoom: DefaultSpeed, Focus: DefaultSpeed}
}

// Get returns the value for axis.
func (s Speeds) Get(a SpeedAxis) int {
	switch a {
	case SpeedPan:
		return s.Pan
	case SpeedTilt:
		return s.Tilt
	case SpeedZoom:
		return s.Zoom
	case SpeedFocus:
		return s.Focus
	}
	return 0
}

// With returns a copy of s with axis set to v, clamped.
func (s Speeds) With(a SpeedAxis, v int) Speeds {
	v = ClampSpeed(a, v)
	switch a {
	case SpeedPan:
		s.Pan = v
	case SpeedTilt:
		s.Tilt = v
	case SpeedZoom:
		s.Zoom = v
	case SpeedFocus:
		s.Focus = v
	}
	return s
}

// Clamp returns s with every value limited to its range.
func (s Speeds) Clamp() Speeds {
	for _, a := range SpeedAxes {
		s = s.With(a, s.Get(a))
	}
	return s
}
