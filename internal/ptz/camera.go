package ptz

import "context"

// Camera defines the operations the console needs from a PTZ camera client.
// Every call is a single command/response exchange on a half-duplex link, so
// callers must serialize them.
type Camera interface {
	// Close closes the camera connection. Closing twice is not an error.
	Close() error

	// IsOpen reports whether the underlying transport is still usable.
	IsOpen() bool

	// ReadRaw returns one unsolicited frame if one is waiting, or nil.
	// It never blocks longer than a few milliseconds.
	ReadRaw() ([]byte, error)

	// Continuous motion. Speeds use the device's native range.
	Up(speed int) error
	Down(speed int) error
	Left(speed int) error
	Right(speed int) error
	Stop() error

	ZoomIn(speed int) error
	ZoomOut(speed int) error
	ZoomStop() error

	FocusNear(speed int) error
	FocusFar(speed int) error
	FocusStop() error
	Autofocus() error

	// Discrete commands
	Home() error
	Reset() error
	ResetInputBuffer() error
	Power() (Power, error)
	SetPower(on bool) error
	WhiteBalance() (WhiteBalance, error)
	SetWhiteBalance(mode WhiteBalance) error
	RecallPreset(preset int) error

	// Inquiries
	PanTiltPosition() (pan, tilt int, err error)
	ZoomPosition() (int, error)
	VideoFormat() (string, error)
	AEMode() (string, error)
	WhiteBalanceName() (string, error)
}

// Dialer opens a camera session to target.
type Dialer func(ctx context.Context, target string) (Camera, error)
