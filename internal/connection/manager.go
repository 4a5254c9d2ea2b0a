// Package connection owns the single camera session: connecting, liveness
// checks, reconnect-on-demand and the device gate that serializes every call
// to the camera.
package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ptz-console/internal/metrics"
	"ptz-console/internal/ptz"
)

// Session is one open camera connection. It is replaced, never mutated, on
// reconnect.
type Session struct {
	ID     uuid.UUID
	Target string
	Camera ptz.Camera
	Opened time.Time
}

// Config configures a Manager.
type Config struct {
	// Target is the initial last-known target.
	Target  string
	Dialer  ptz.Dialer
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Events  EventPublisher
	Now     func() time.Time
}

// Manager owns the session lifecycle.
//
// gate serializes device calls and session replacement. mu guards the fields
// read by the non-blocking accessors. Lock order: gate, then pubMu, then mu.
// Lifecycle events are queued under the gate and published once it is
// released, in the order they were queued.
type Manager struct {
	dial    ptz.Dialer
	log     zerolog.Logger
	metrics *metrics.Metrics
	events  EventPublisher
	now     func() time.Time

	gate    sync.Mutex
	pending []Event // guarded by gate
	pubMu   sync.Mutex

	mu            sync.RWMutex
	session       *Session
	target        string
	everConnected bool
}

// New returns a Manager with no session.
func New(cfg Config) *Manager {
	m := &Manager{
		dial:    cfg.Dialer,
		log:     cfg.Logger.With().Str("component", "connection").Logger(),
		metrics: cfg.Metrics,
		events:  cfg.Events,
		now:     cfg.Now,
		target:  cfg.Target,
	}
	if m.events == nil {
		m.events = noopPublisher{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Target returns the last-known target.
func (m *Manager) Target() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.target
}

// SetTarget changes the target used by the next reconnect. The current
// session is left alone.
func (m *Manager) SetTarget(target string) {
	m.mu.Lock()
	m.target = target
	m.mu.Unlock()
}

// Session returns the current session, or nil.
func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// EverConnected reports whether any connect has succeeded.
func (m *Manager) EverConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.everConnected
}

// Connect opens a session to target, replacing the current one on success.
// On failure the current session is left untouched and a
// *ptz.ConnectivityError is returned.
func (m *Manager) Connect(ctx context.Context, target string) (*Session, error) {
	m.gate.Lock()
	defer m.release()
	return m.connectLocked(ctx, target)
}

// publish queues e for delivery when the gate is released. The gate must be
// held.
func (m *Manager) publish(e Event) {
	m.pending = append(m.pending, e)
}

// release unlocks the gate and then delivers the queued events. pubMu is
// taken before the gate is dropped so a later holder cannot overtake them.
func (m *Manager) release() {
	events := m.pending
	m.pending = nil
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	m.gate.Unlock()
	for _, e := range events {
		m.events.Publish(e)
	}
}

func (m *Manager) connectLocked(ctx context.Context, target string) (*Session, error) {
	m.SetTarget(target)
	log := m.log.With().Str("target", target).Logger()
	log.Debug().Msg("connecting")

	cam, err := m.safeDial(ctx, target)
	m.metrics.ConnectAttempt(err)
	if err != nil {
		cerr := &ptz.ConnectivityError{Target: target, Err: err}
		log.Warn().Err(err).Msg("connect failed")
		m.publish(Event{Name: EventConnectFailed, Target: target, Err: cerr})
		return nil, cerr
	}

	s := &Session{ID: uuid.New(), Target: target, Camera: cam, Opened: m.now()}

	m.mu.Lock()
	old := m.session
	m.session = s
	m.everConnected = true
	m.mu.Unlock()

	if old != nil && old.Camera != nil {
		if err := old.Camera.Close(); err != nil {
			log.Debug().Err(err).Str("session", old.ID.String()).Msg("closing replaced session")
		}
	}
	m.metrics.SetConnected(true)
	log.Info().Str("session", s.ID.String()).Msg("connected")
	m.publish(Event{Name: EventConnected, Target: target, Fields: map[string]any{"session": s.ID.String()}})
	return s, nil
}

func (m *Manager) safeDial(ctx context.Context, target string) (cam ptz.Camera, err error) {
	if m.dial == nil {
		return nil, fmt.Errorf("no dialer configured")
	}
	defer func() {
		if r := recover(); r != nil {
			cam, err = nil, fmt.Errorf("dial panic: %v", r)
		}
	}()
	cam, err = m.dial(ctx, target)
	if err == nil && cam == nil {
		err = fmt.Errorf("dialer returned no camera")
	}
	return cam, err
}

// IsLive reports whether a session exists and its transport is open. It
// never mutates state and never blocks behind a device call. A panic while
// probing counts as not live.
func (m *Manager) IsLive() bool {
	s := m.Session()
	if s == nil || s.Camera == nil {
		return false
	}
	return isOpen(s.Camera)
}

func isOpen(cam ptz.Camera) (open bool) {
	defer func() {
		if recover() != nil {
			open = false
		}
	}()
	return cam.IsOpen()
}

// EnsureConnected makes at most one connect attempt with the last-known
// target when the session is not live, and returns the resulting liveness.
func (m *Manager) EnsureConnected(ctx context.Context) bool {
	if m.IsLive() {
		return true
	}

	m.gate.Lock()
	defer m.release()
	// Another caller may have reconnected while we waited for the gate.
	if m.IsLive() {
		return true
	}
	target := m.Target()
	m.publish(Event{Name: EventReconnecting, Target: target})
	if _, err := m.connectLocked(ctx, target); err != nil {
		return false
	}
	return m.IsLive()
}

// Disconnect closes the session. Closing an already-closed handle is not an
// error.
func (m *Manager) Disconnect() error {
	m.gate.Lock()
	defer m.release()

	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	if s.Camera != nil {
		if err := s.Camera.Close(); err != nil {
			m.log.Debug().Err(err).Str("session", s.ID.String()).Msg("close on disconnect")
		}
	}
	m.metrics.SetConnected(false)
	m.log.Info().Str("target", s.Target).Str("session", s.ID.String()).Msg("disconnected")
	m.publish(Event{Name: EventDisconnected, Target: s.Target})
	return nil
}

// Device is a handle to the camera valid only inside Hold.
type Device struct {
	m *Manager
}

// Do runs fn against the current camera without taking the gate again.
func (d Device) Do(op string, fn func(ptz.Camera) error) error {
	return d.m.do(op, fn)
}

// Live reports whether the session is live.
func (d Device) Live() bool { return d.m.IsLive() }

// Hold runs fn with the device gate held so that several device calls, and
// the bookkeeping around them, happen without interleaving with other actors.
func (m *Manager) Hold(fn func(Device)) {
	m.gate.Lock()
	defer m.gate.Unlock()
	fn(Device{m: m})
}

// Do runs fn against the current camera under the device gate. It returns a
// *ptz.ConnectivityError when there is no live session or the transport
// closed during the call, and a *ptz.CommandError for any other failure.
func (m *Manager) Do(op string, fn func(ptz.Camera) error) error {
	m.gate.Lock()
	defer m.gate.Unlock()
	return m.do(op, fn)
}

func (m *Manager) do(op string, fn func(ptz.Camera) error) error {
	s := m.Session()
	if s == nil || s.Camera == nil || !isOpen(s.Camera) {
		return &ptz.ConnectivityError{Target: m.Target(), Err: ptz.ErrNotConnected}
	}

	start := m.now()
	err := m.call(s.Camera, fn)
	m.metrics.DeviceCall(op, m.now().Sub(start), err)
	if err == nil {
		return nil
	}

	log := m.log.With().Str("op", op).Str("session", s.ID.String()).Logger()
	if ptz.IsConnectivity(err) || !isOpen(s.Camera) {
		log.Warn().Err(err).Msg("transport lost")
		m.metrics.SetConnected(false)
		if ptz.IsConnectivity(err) {
			return err
		}
		return &ptz.ConnectivityError{Target: s.Target, Err: err}
	}
	log.Debug().Err(err).Msg("device call failed")
	if ptz.IsCommand(err) {
		return err
	}
	return &ptz.CommandError{Op: op, Err: err}
}

func (m *Manager) call(cam ptz.Camera, fn func(ptz.Camera) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(cam)
}
