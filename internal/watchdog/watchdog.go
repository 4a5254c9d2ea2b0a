// Package watchdog turns discrete "pressed" events into safe continuous
// motion: every motion command refreshes its axis, and an axis that has not
// been refreshed within its timeout is stopped exactly once.
package watchdog

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ptz-console/internal/metrics"
)

// DefaultTimeout is the auto-stop delay for every axis.
const DefaultTimeout = 150 * time.Millisecond

// Axis is an independently stoppable motor group.
type Axis int

const (
	Movement Axis = iota // pan and tilt together
	Zoom
	Focus
)

// Axes lists every axis in check order.
var Axes = []Axis{Movement, Zoom, Focus}

func (a Axis) String() string {
	switch a {
	case Movement:
		return "movement"
	case Zoom:
		return "zoom"
	case Focus:
		return "focus"
	}
	return "unknown"
}

// Mode is the direction an axis is moving in; None means idle.
type Mode string

const (
	None  Mode = ""
	Up    Mode = "up"
	Down  Mode = "down"
	Left  Mode = "left"
	Right Mode = "right"
	In    Mode = "in"
	Out   Mode = "out"
	Near  Mode = "near"
	Far   Mode = "far"
)

// Axis returns the axis a mode belongs to.
func (m Mode) Axis() (Axis, bool) {
	switch m {
	case Up, Down, Left, Right:
		return Movement, true
	case In, Out:
		return Zoom, true
	case Near, Far:
		return Focus, true
	}
	return 0, false
}

// State is a copy of one axis's state.
type State struct {
	Axis        Axis          `json:"-"`
	Mode        Mode          `json:"mode"`
	LastCommand time.Time     `json:"last_command"`
	Timeout     time.Duration `json:"timeout"`
}

// Active reports whether the axis is moving.
func (s State) Active() bool { return s.Mode != None }

// Config configures a Watchdog. Zero timeouts use DefaultTimeout.
type Config struct {
	Movement time.Duration
	Zoom     time.Duration
	Focus    time.Duration
	Now      func() time.Time
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Watchdog tracks the three axes. Start and Tick are expected to run under
// the caller's device lock so that a command and its registration are never
// split by a timeout decision.
type Watchdog struct {
	mu      sync.Mutex
	axes    [3]State
	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func New(cfg Config) *Watchdog {
	w := &Watchdog{
		now:     cfg.Now,
		log:     cfg.Logger.With().Str("component", "watchdog").Logger(),
		metrics: cfg.Metrics,
	}
	if w.now == nil {
		w.now = time.Now
	}
	for i, d := range []time.Duration{cfg.Movement, cfg.Zoom, cfg.Focus} {
		if d <= 0 {
			d = DefaultTimeout
		}
		w.axes[i] = State{Axis: Axis(i), Timeout: d}
	}
	return w
}

// Start marks axis as moving in mode and refreshes its timestamp. Starting
// with None is the same as Stop.
func (w *Watchdog) Start(axis Axis, mode Mode) {
	if mode == None {
		w.Stop(axis)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	st := &w.axes[axis]
	st.Mode = mode
	st.LastCommand = w.now()
}

// Stop resets axis after an explicit stop. Stopping an idle axis is a no-op.
func (w *Watchdog) Stop(axis Axis) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := &w.axes[axis]
	st.Mode = None
	st.LastCommand = time.Time{}
}

// StopAll resets every axis.
func (w *Watchdog) StopAll() {
	for _, a := range Axes {
		w.Stop(a)
	}
}

// Tick stops every active axis whose last command is older than its timeout
// at now, and returns those axes. The axis is reset before stop is called, so
// a failing stop is logged and not retried.
func (w *Watchdog) Tick(now time.Time, stop func(Axis) error) []Axis {
	return w.expire(func(st State) bool { return now.Sub(st.LastCommand) > st.Timeout }, stop)
}

// Flush stops every active axis regardless of its timestamp.
func (w *Watchdog) Flush(stop func(Axis) error) []Axis {
	return w.expire(func(State) bool { return true }, stop)
}

// Active reports whether any axis is moving.
func (w *Watchdog) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, st := range w.axes {
		if st.Mode != None {
			return true
		}
	}
	return false
}

func (w *Watchdog) expire(due func(State) bool, stop func(Axis) error) []Axis {
	var expired []Axis
	w.mu.Lock()
	for i := range w.axes {
		st := &w.axes[i]
		if st.Mode == None || !due(*st) {
			continue
		}
		expired = append(expired, st.Axis)
		st.Mode = None
		st.LastCommand = time.Time{}
	}
	w.mu.Unlock()

	for _, a := range expired {
		err := stop(a)
		w.metrics.WatchdogStop(a.String(), err)
		if err != nil {
			w.log.Warn().Err(err).Str("axis", a.String()).Msg("auto-stop failed")
			continue
		}
		w.log.Debug().Str("axis", a.String()).Msg("auto-stop")
	}
	return expired
}

// State returns a copy of axis's state.
func (w *Watchdog) State(axis Axis) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.axes[axis]
}

// States returns copies of every axis's state.
func (w *Watchdog) States() []State {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]State, len(w.axes))
	copy(out, w.axes[:])
	return out
}
