package tui

import (
	"context"
	"strconv"

	"ptz-console/internal/ptz"
	"ptz-console/internal/session"
)

// action is a device command bound to a key. It runs off the UI goroutine.
type action func(ctx context.Context, c session.Console) error

type binding struct {
	keys []string
	run  action
	// speed bindings adjust a setting locally and never block
	speed func(c session.Console)
}

func cmd(name string) action {
	return func(ctx context.Context, c session.Console) error {
		return session.Execute(ctx, c, name, "")
	}
}

func preset(n int) action {
	return func(ctx context.Context, c session.Console) error {
		return session.Execute(ctx, c, session.CmdRecallPreset, strconv.Itoa(n))
	}
}

func faster(axis ptz.SpeedAxis) func(session.Console) {
	return func(c session.Console) { c.IncreaseSpeed(axis) }
}

func slower(axis ptz.SpeedAxis) func(session.Console) {
	return func(c session.Console) { c.DecreaseSpeed(axis) }
}

var bindings = []binding{
	{keys: []string{"up"}, run: cmd(session.CmdMoveUp)},
	{keys: []string{"down"}, run: cmd(session.CmdMoveDown)},
	{keys: []string{"left"}, run: cmd(session.CmdMoveLeft)},
	{keys: []string{"right"}, run: cmd(session.CmdMoveRight)},
	{keys: []string{" "}, run: cmd(session.CmdStop)},
	{keys: []string{"+", "="}, run: cmd(session.CmdZoomIn)},
	{keys: []string{"-", "_"}, run: cmd(session.CmdZoomOut)},
	{keys: []string{"z"}, run: cmd(session.CmdZoomStop)},
	{keys: []string{"["}, run: cmd(session.CmdFocusNear)},
	{keys: []string{"]"}, run: cmd(session.CmdFocusFar)},
	{keys: []string{"x"}, run: cmd(session.CmdFocusStop)},
	{keys: []string{"F"}, run: cmd(session.CmdAutofocus)},
	{keys: []string{"h"}, run: cmd(session.CmdHome)},
	{keys: []string{"p"}, run: cmd(session.CmdTogglePower)},
	{keys: []string{"r"}, run: cmd(session.CmdReset)},
	{keys: []string{"c"}, run: cmd(session.CmdClear)},
	{keys: []string{"b"}, run: cmd(session.CmdCycleWhiteBalance)},
	{keys: []string{"ctrl+r"}, run: cmd(session.CmdReconnect)},
	{keys: []string{"ctrl+d"}, run: cmd(session.CmdDisconnect)},
	{keys: []string{","}, speed: slower(ptz.SpeedPan)},
	{keys: []string{"."}, speed: faster(ptz.SpeedPan)},
	{keys: []string{"<"}, speed: slower(ptz.SpeedTilt)},
	{keys: []string{">"}, speed: faster(ptz.SpeedTilt)},
	{keys: []string{"a"}, speed: slower(ptz.SpeedZoom)},
	{keys: []string{"d"}, speed: faster(ptz.SpeedZoom)},
	{keys: []string{"s"}, speed: slower(ptz.SpeedFocus)},
	{keys: []string{"f"}, speed: faster(ptz.SpeedFocus)},
}

var keymap = buildKeymap()

func buildKeymap() map[string]binding {
	m := make(map[string]binding)
	for _, b := range bindings {
		for _, k := range b.keys {
			m[k] = b
		}
	}
	for n := 0; n <= 9; n++ {
		m[strconv.Itoa(n)] = binding{run: preset(n)}
	}
	return m
}

const helpText = "arrows move · space stop · +/- zoom · z zoom stop · [ ] focus · x focus stop · F autofocus\n" +
	", . pan speed · < > tilt speed · a d zoom speed · s f focus speed · 0-9 presets\n" +
	"h home · p power · r reset · c clear · b white balance · ^R reconnect · ^D disconnect · esc quit"
