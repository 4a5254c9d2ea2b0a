package status

import (
	"time"

	"ptz-console/internal/ptz"
)

// Sentinels used when a field could not be read.
const (
	UnknownString = "Unknown"

	msgNeverConnected = "No camera connection"
	msgConnectionLost = "Connection lost - will reconnect on next action"
	maxErrorLen       = 100
)

// Snapshot is an immutable view of the device. It is replaced wholesale,
// never modified after publication.
type Snapshot struct {
	Connected    bool       `json:"connected"`
	Power        ptz.Power  `json:"power"`
	Pan          int        `json:"pan"`
	Tilt         int        `json:"tilt"`
	Zoom         int        `json:"zoom"`
	VideoFormat  string     `json:"video_format"`
	AEMode       string     `json:"ae_mode"`
	WhiteBalance string     `json:"white_balance"`
	Speeds       ptz.Speeds `json:"speeds"`
	Error        string     `json:"error,omitempty"`
	SessionID    string     `json:"session_id,omitempty"`
	CapturedAt   time.Time  `json:"captured_at"`
}

// Disconnected returns a snapshot with every field at its sentinel.
func Disconnected(errMsg string, at time.Time) Snapshot {
	return Snapshot{
		Power:        ptz.PowerUnknown,
		VideoFormat:  UnknownString,
		AEMode:       UnknownString,
		WhiteBalance: UnknownString,
		Error:        truncate(errMsg),
		CapturedAt:   at,
	}
}

// truncate shortens error text longer than 100 characters to 97 plus "...".
func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxErrorLen {
		return s
	}
	return string(r[:maxErrorLen-3]) + "..."
}
