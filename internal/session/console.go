package session

import (
	"context"
	"fmt"
	"strconv"

	"ptz-console/internal/activity"
	"ptz-console/internal/ptz"
	"ptz-console/internal/status"
	"ptz-console/internal/watchdog"
)

// Console is the command surface user interfaces drive.
type Console interface {
	MoveUp(ctx context.Context) error
	MoveDown(ctx context.Context) error
	MoveLeft(ctx context.Context) error
	MoveRight(ctx context.Context) error
	Stop(ctx context.Context) error
	ZoomIn(ctx context.Context) error
	ZoomOut(ctx context.Context) error
	ZoomStop(ctx context.Context) error
	FocusNear(ctx context.Context) error
	FocusFar(ctx context.Context) error
	FocusStop(ctx context.Context) error
	Autofocus(ctx context.Context) error
	Home(ctx context.Context) error
	TogglePower(ctx context.Context) error
	Reset(ctx context.Context) error
	ClearBuffers(ctx context.Context) error
	SetWhiteBalance(ctx context.Context, mode ptz.WhiteBalance) error
	CycleWhiteBalance(ctx context.Context) error
	RecallPreset(ctx context.Context, preset int) error
	IncreaseSpeed(axis ptz.SpeedAxis) int
	DecreaseSpeed(axis ptz.SpeedAxis) int

	Connect(ctx context.Context, target string) error
	Reconnect(ctx context.Context) error
	Disconnect() error
	SetTarget(target string)
	Target() string

	Snapshot() status.Snapshot
	StatusMessage() string
	Logs(n int) []activity.Entry
	LogSeq() uint64
	Messages(n int) [][]byte
	Speeds() ptz.Speeds
	Axes() []watchdog.State
}

var _ Console = (*Orchestrator)(nil)

// Command names accepted by Execute.
const (
	CmdMoveUp            = "move_up"
	CmdMoveDown          = "move_down"
	CmdMoveLeft          = "move_left"
	CmdMoveRight         = "move_right"
	CmdStop              = "stop"
	CmdZoomIn            = "zoom_in"
	CmdZoomOut           = "zoom_out"
	CmdZoomStop          = "zoom_stop"
	CmdFocusNear         = "focus_near"
	CmdFocusFar          = "focus_far"
	CmdFocusStop         = "focus_stop"
	CmdAutofocus         = "autofocus"
	CmdHome              = "home"
	CmdTogglePower       = "toggle_power"
	CmdReset             = "reset"
	CmdClear             = "clear"
	CmdWhiteBalance      = "white_balance"
	CmdCycleWhiteBalance = "cycle_white_balance"
	CmdRecallPreset      = "recall_preset"
	CmdReconnect         = "reconnect"
	CmdDisconnect        = "disconnect"
)

// Execute runs the command called name. arg carries the white balance mode
// or preset number for the commands that take one.
func Execute(ctx context.Context, c Console, name, arg string) error {
	simple := map[string]func(context.Context) error{
		CmdMoveUp:            c.MoveUp,
		CmdMoveDown:          c.MoveDown,
		CmdMoveLeft:          c.MoveLeft,
		CmdMoveRight:         c.MoveRight,
		CmdStop:              c.Stop,
		CmdZoomIn:            c.ZoomIn,
		CmdZoomOut:           c.ZoomOut,
		CmdZoomStop:          c.ZoomStop,
		CmdFocusNear:         c.FocusNear,
		CmdFocusFar:          c.FocusFar,
		CmdFocusStop:         c.FocusStop,
		CmdAutofocus:         c.Autofocus,
		CmdHome:              c.Home,
		CmdTogglePower:       c.TogglePower,
		CmdReset:             c.Reset,
		CmdClear:             c.ClearBuffers,
		CmdCycleWhiteBalance: c.CycleWhiteBalance,
		CmdReconnect:         c.Reconnect,
	}
	if fn, ok := simple[name]; ok {
		return fn(ctx)
	}

	switch name {
	case CmdWhiteBalance:
		mode, err := ptz.ParseWhiteBalance(arg)
		if err != nil {
			return err
		}
		return c.SetWhiteBalance(ctx, mode)
	case CmdRecallPreset:
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 || n > 255 {
			return fmt.Errorf("invalid preset %q", arg)
		}
		return c.RecallPreset(ctx, n)
	case CmdDisconnect:
		return c.Disconnect()
	}
	return fmt.Errorf("unknown command %q", name)
}
