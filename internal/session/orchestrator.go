package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ptz-console/internal/activity"
	"ptz-console/internal/connection"
	"ptz-console/internal/metrics"
	"ptz-console/internal/ptz"
	"ptz-console/internal/status"
	"ptz-console/internal/watchdog"
)

// DefaultTickInterval is the period of the background cycle.
const DefaultTickInterval = 100 * time.Millisecond

// Observer is told about every published snapshot and every new log line.
// Implementations must not block.
type Observer interface {
	SnapshotPublished(status.Snapshot)
	Logged(activity.Entry)
}

// Config configures an Orchestrator.
type Config struct {
	Target string
	Dialer ptz.Dialer
	Speeds ptz.Speeds

	MovementTimeout time.Duration
	ZoomTimeout     time.Duration
	FocusTimeout    time.Duration
	StatusInterval  time.Duration
	TickInterval    time.Duration

	// OnConnected runs after every successful connect, e.g. to persist
	// settings. A returned error is logged.
	OnConnected func(target string, speeds ptz.Speeds) error

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Orchestrator is the console core shared by every user interface.
type Orchestrator struct {
	conn     *connection.Manager
	watchdog *watchdog.Watchdog
	poller   *status.Poller
	activity *activity.Log
	messages *activity.Queue

	log         zerolog.Logger
	now         func() time.Time
	tick        time.Duration
	onConnected func(string, ptz.Speeds) error

	mu        sync.RWMutex
	speeds    ptz.Speeds
	statusMsg string
	observers []Observer

	snapshot atomic.Pointer[status.Snapshot]
	logSeq   uint64

	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New builds an Orchestrator. The background cycle is not started.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		activity:    activity.NewLog(activity.DefaultLogCapacity),
		messages:    activity.NewQueue(activity.DefaultMessageCapacity),
		log:         cfg.Logger.With().Str("component", "session").Logger(),
		now:         cfg.Now,
		tick:        cfg.TickInterval,
		onConnected: cfg.OnConnected,
		speeds:      cfg.Speeds,
		statusMsg:   "Initializing...",
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.tick <= 0 {
		o.tick = DefaultTickInterval
	}
	if o.speeds == (ptz.Speeds{}) {
		o.speeds = ptz.DefaultSpeeds()
	}
	o.speeds = o.speeds.Clamp()

	o.conn = connection.New(connection.Config{
		Target:  cfg.Target,
		Dialer:  cfg.Dialer,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
		Events:  eventSink{o},
		Now:     o.now,
	})
	o.watchdog = watchdog.New(watchdog.Config{
		Movement: cfg.MovementTimeout,
		Zoom:     cfg.ZoomTimeout,
		Focus:    cfg.FocusTimeout,
		Now:      o.now,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	o.poller = status.NewPoller(status.Config{
		Conn:     o.conn,
		Interval: cfg.StatusInterval,
		Activity: o.activity,
		Messages: o.messages,
		Now:      o.now,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})
	return o
}

// AddObserver registers obs for snapshots and log lines.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.mu.Lock()
	o.observers = append(o.observers, obs)
	o.mu.Unlock()
}

func (o *Orchestrator) observersCopy() []Observer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Observer(nil), o.observers...)
}

// Snapshot returns the last published snapshot. It never blocks on the device.
func (o *Orchestrator) Snapshot() status.Snapshot {
	if s := o.snapshot.Load(); s != nil {
		return *s
	}
	s := status.Disconnected("No camera connection", time.Time{})
	s.Speeds = o.Speeds()
	return s
}

// StatusMessage returns the latest one-line status.
func (o *Orchestrator) StatusMessage() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.statusMsg
}

// Logs returns up to n of the newest activity log entries, oldest first.
func (o *Orchestrator) Logs(n int) []activity.Entry { return o.activity.Tail(n) }

// LogSeq returns the number of log lines ever written.
func (o *Orchestrator) LogSeq() uint64 { return o.activity.Seq() }

// Messages returns up to n of the newest raw device messages, oldest first.
func (o *Orchestrator) Messages(n int) [][]byte { return o.messages.Tail(n) }

// Axes returns the watchdog state of every axis.
func (o *Orchestrator) Axes() []watchdog.State { return o.watchdog.States() }

// Target returns the last-known target.
func (o *Orchestrator) Target() string { return o.conn.Target() }

// Connected reports whether the session is live.
func (o *Orchestrator) Connected() bool { return o.conn.IsLive() }

// setStatus replaces the status message without logging it.
func (o *Orchestrator) setStatus(msg string) {
	o.mu.Lock()
	o.statusMsg = msg
	o.mu.Unlock()
}

// report sets the status message and logs it.
func (o *Orchestrator) report(msg string) {
	o.setStatus(msg)
	o.activity.Add(msg)
}
