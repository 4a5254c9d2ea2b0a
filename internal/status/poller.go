// Package status builds device snapshots at a bounded rate and drains
// unsolicited device messages.
package status

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ptz-console/internal/activity"
	"ptz-console/internal/connection"
	"ptz-console/internal/metrics"
	"ptz-console/internal/ptz"
)

// DefaultInterval is the minimum time between device queries.
const DefaultInterval = 500 * time.Millisecond

// Conn is the part of the connection manager the poller uses.
type Conn interface {
	IsLive() bool
	EverConnected() bool
	Session() *connection.Session
	Do(op string, fn func(ptz.Camera) error) error
}

// Config configures a Poller.
type Config struct {
	Conn     Conn
	Interval time.Duration
	Activity *activity.Log
	Messages *activity.Queue
	Now      func() time.Time
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Poller queries the device at most once per interval and otherwise returns
// the cached snapshot.
//
// queryMu serializes queries and is held across device calls, so it is taken
// before the device gate. mu only guards the cache and is never held while
// calling the device. Invalidate takes neither.
type Poller struct {
	conn     Conn
	interval time.Duration
	activity *activity.Log
	messages *activity.Queue
	now      func() time.Time
	log      zerolog.Logger
	metrics  *metrics.Metrics

	queryMu sync.Mutex
	stale   atomic.Bool

	mu     sync.Mutex
	last   time.Time
	polled bool
	cached Snapshot
}

func NewPoller(cfg Config) *Poller {
	p := &Poller{
		conn:     cfg.Conn,
		interval: cfg.Interval,
		activity: cfg.Activity,
		messages: cfg.Messages,
		now:      cfg.Now,
		log:      cfg.Logger.With().Str("component", "status").Logger(),
		metrics:  cfg.Metrics,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.now == nil {
		p.now = time.Now
	}
	p.cached = Disconnected(msgNeverConnected, time.Time{})
	return p
}

// Poll returns a fresh snapshot when the interval has elapsed since the last
// query, and the cached one otherwise. The first call always queries.
func (p *Poller) Poll() Snapshot {
	p.queryMu.Lock()
	defer p.queryMu.Unlock()

	now := p.now()
	p.mu.Lock()
	fresh := p.polled && now.Sub(p.last) < p.interval
	cached := p.cached
	p.mu.Unlock()
	if p.stale.Swap(false) {
		fresh = false
	}
	if fresh {
		return cached
	}

	snap := p.query(now)
	p.mu.Lock()
	p.last = now
	p.polled = true
	p.cached = snap
	p.mu.Unlock()
	return snap
}

// Cached returns the last snapshot without touching the device.
func (p *Poller) Cached() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cached
}

// Invalidate makes the next Poll query the device. It never blocks, so it
// is safe to call while a poll is in flight.
func (p *Poller) Invalidate() {
	p.stale.Store(true)
}

type field struct {
	name string
	read func(ptz.Camera) error
}

func (p *Poller) query(now time.Time) Snapshot {
	if !p.conn.IsLive() {
		p.metrics.Poll(false)
		if p.conn.EverConnected() {
			return Disconnected(msgConnectionLost, now)
		}
		return Disconnected(msgNeverConnected, now)
	}

	s := Disconnected("", now)
	s.Connected = true
	if sess := p.conn.Session(); sess != nil {
		s.SessionID = sess.ID.String()
	}

	fields := []field{
		{"power", func(c ptz.Camera) error {
			v, err := c.Power()
			if err == nil {
				s.Power = v
			}
			return err
		}},
		{"pan_tilt", func(c ptz.Camera) error {
			pan, tilt, err := c.PanTiltPosition()
			if err == nil {
				s.Pan, s.Tilt = pan, tilt
			}
			return err
		}},
		{"zoom", func(c ptz.Camera) error {
			v, err := c.ZoomPosition()
			if err == nil {
				s.Zoom = v
			}
			return err
		}},
		{"video_format", func(c ptz.Camera) error {
			v, err := c.VideoFormat()
			if err == nil {
				s.VideoFormat = v
			}
			return err
		}},
		{"ae_mode", func(c ptz.Camera) error {
			v, err := c.AEMode()
			if err == nil {
				s.AEMode = v
			}
			return err
		}},
		{"white_balance", func(c ptz.Camera) error {
			v, err := c.WhiteBalanceName()
			if err == nil {
				s.WhiteBalance = v
			}
			return err
		}},
	}

	for _, f := range fields {
		err := p.conn.Do("status."+f.name, f.read)
		if err == nil {
			continue
		}
		if ptz.IsConnectivity(err) {
			p.log.Warn().Err(err).Str("field", f.name).Msg("poll aborted")
			p.metrics.Poll(false)
			out := Disconnected(err.Error(), now)
			out.SessionID = s.SessionID
			return out
		}
		ferr := &ptz.FieldError{Field: f.name, Err: err}
		p.log.Debug().Err(ferr).Msg("status field unavailable")
		p.metrics.FieldFailure(f.name)
	}
	p.metrics.Poll(true)
	return s
}

// Drain performs one non-blocking raw read. A non-empty frame is queued and
// logged as "Msg: <hex>" and returned.
func (p *Poller) Drain() []byte {
	if !p.conn.IsLive() {
		return nil
	}
	var frame []byte
	err := p.conn.Do("read_raw", func(c ptz.Camera) error {
		b, err := c.ReadRaw()
		frame = b
		return err
	})
	if err != nil {
		p.log.Debug().Err(err).Msg("raw read failed")
		return nil
	}
	if len(frame) == 0 {
		return nil
	}
	if p.messages != nil {
		p.messages.Push(frame)
	}
	if p.activity != nil {
		p.activity.Add("Msg: " + activity.FormatMessage(frame))
	}
	p.metrics.Incoming()
	return frame
}
