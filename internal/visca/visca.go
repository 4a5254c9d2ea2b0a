// Package visca implements a VISCA camera client over serial, TCP, RFC 2217
// and VISCA-over-IP transports.
package visca

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ptz-console/internal/ptz"
)

var (
	// ErrClosed is returned once the transport has failed or been closed.
	ErrClosed = errors.New("visca: transport closed")

	// ErrTimeout is returned when the camera does not answer in time.
	ErrTimeout = errors.New("visca: no reply from camera")
)

// ReplyError is a VISCA error reply (y0 6z ee FF).
type ReplyError struct {
	Code byte
}

func (e *ReplyError) Error() string {
	switch e.Code {
	case 0x01:
		return "visca: message length error"
	case 0x02:
		return "visca: syntax error"
	case 0x03:
		return "visca: command buffer full"
	case 0x04:
		return "visca: command canceled"
	case 0x05:
		return "visca: no socket"
	case 0x41:
		return "visca: command not executable"
	}
	return fmt.Sprintf("visca: error reply 0x%02X", e.Code)
}

const (
	defaultReplyTimeout   = 500 * time.Millisecond
	defaultCompletionWait = 100 * time.Millisecond
	rawReadWait           = 5 * time.Millisecond
	maxPending            = 16
)

// Camera is a VISCA client. Calls are serialized internally; replies that do
// not belong to the current exchange are kept for ReadRaw.
type Camera struct {
	t    Transport
	addr byte
	log  zerolog.Logger

	replyTimeout   time.Duration
	completionWait time.Duration

	mu      sync.Mutex
	buf     []byte
	pending [][]byte
	closed  atomic.Bool
}

// Option configures a Camera.
type Option func(*Camera)

// WithAddress sets the camera address (1-7).
func WithAddress(addr int) Option {
	return func(c *Camera) {
		if addr >= 1 && addr <= 7 {
			c.addr = byte(addr)
		}
	}
}

// WithLogger sets the logger used for frame tracing.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Camera) { c.log = log.With().Str("component", "visca").Logger() }
}

// WithTimeouts sets how long to wait for the first reply to a request and
// for the completion that follows an acknowledgement.
func WithTimeouts(reply, completion time.Duration) Option {
	return func(c *Camera) {
		c.replyTimeout = reply
		c.completionWait = completion
	}
}

// New returns a client speaking over t.
func New(t Transport, opts ...Option) *Camera {
	c := &Camera{
		t:              t,
		addr:           1,
		log:            zerolog.Nop(),
		replyTimeout:   defaultReplyTimeout,
		completionWait: defaultCompletionWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial opens the transport named by target and returns a client on it.
func Dial(ctx context.Context, target string, opts ...Option) (*Camera, error) {
	t, err := OpenTransport(ctx, target)
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}

// Dialer returns a ptz.Dialer that opens VISCA cameras with opts.
func Dialer(opts ...Option) ptz.Dialer {
	return func(ctx context.Context, target string) (ptz.Camera, error) {
		return Dial(ctx, target, opts...)
	}
}

// Close closes the transport. Closing twice is not an error.
func (c *Camera) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.t.Close()
}

// IsOpen reports whether the transport is still usable. It does not block
// behind an exchange in progress.
func (c *Camera) IsOpen() bool {
	return !c.closed.Load()
}

// fail closes the transport after an I/O error.
func (c *Camera) fail(err error) error {
	if !c.closed.Swap(true) {
		c.t.Close()
		c.log.Debug().Err(err).Msg("transport failed")
	}
	return fmt.Errorf("%w: %v", ErrClosed, err)
}

// buildVISCAPayload constructs a raw VISCA frame (address + payload + terminator).
func (c *Camera) buildVISCAPayload(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+2)
	frame = append(frame, 0x80|c.addr)
	frame = append(frame, payload...)
	return append(frame, 0xFF)
}

func (c *Camera) send(payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	frame := c.buildVISCAPayload(payload)
	c.log.Trace().Hex("frame", frame).Msg("send")
	if _, err := c.t.Write(frame); err != nil {
		return c.fail(err)
	}
	return nil
}

// readFrame returns the next FF-terminated frame or ErrTimeout.
func (c *Camera) readFrame(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	chunk := make([]byte, 64)
	for {
		if i := bytes.IndexByte(c.buf, 0xFF); i >= 0 {
			frame := append([]byte(nil), c.buf[:i+1]...)
			c.buf = c.buf[i+1:]
			c.log.Trace().Hex("frame", frame).Msg("recv")
			return frame, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		if c.closed.Load() {
			return nil, ErrClosed
		}
		if err := c.t.SetReadTimeout(remaining); err != nil {
			return nil, c.fail(err)
		}
		n, err := c.t.Read(chunk)
		c.buf = append(c.buf, chunk[:n]...)
		if err != nil {
			return nil, c.fail(err)
		}
	}
}

func (c *Camera) stash(frame []byte) {
	if len(c.pending) >= maxPending {
		c.pending = c.pending[1:]
	}
	c.pending = append(c.pending, frame)
}

type replyKind int

const (
	replyOther replyKind = iota
	replyAck
	replyCompletion
	replyError
)

func classify(frame []byte) replyKind {
	if len(frame) < 3 || frame[0]&0x80 == 0 {
		return replyOther
	}
	switch frame[1] & 0xF0 {
	case 0x40:
		return replyAck
	case 0x50:
		return replyCompletion
	case 0x60:
		return replyError
	}
	return replyOther
}

// command sends a command and waits for its acknowledgement and, briefly,
// its completion.
func (c *Camera) command(payload ...byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(payload); err != nil {
		return err
	}
	acked := false
	for {
		wait := c.replyTimeout
		if acked {
			wait = c.completionWait
		}
		frame, err := c.readFrame(wait)
		if err != nil {
			if acked && errors.Is(err, ErrTimeout) {
				return nil
			}
			return err
		}
		switch classify(frame) {
		case replyAck:
			acked = true
		case replyCompletion:
			if len(frame) == 3 {
				return nil
			}
			c.stash(frame)
		case replyError:
			return &ReplyError{Code: frame[2]}
		default:
			c.stash(frame)
		}
	}
}

// inquiry sends an inquiry and returns the reply payload between the
// y0 50 header and the terminator.
func (c *Camera) inquiry(payload ...byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(payload); err != nil {
		return nil, err
	}
	for {
		frame, err := c.readFrame(c.replyTimeout)
		if err != nil {
			return nil, err
		}
		switch classify(frame) {
		case replyAck:
		case replyCompletion:
			if len(frame) > 3 {
				return frame[2 : len(frame)-1], nil
			}
			// Late completion of an earlier command.
			c.stash(frame)
		case replyError:
			return nil, &ReplyError{Code: frame[2]}
		default:
			c.stash(frame)
		}
	}
}

// ReadRaw returns one frame not claimed by any exchange, or nil when none
// arrives within a few milliseconds.
func (c *Camera) ReadRaw() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) > 0 {
		frame := c.pending[0]
		c.pending = c.pending[1:]
		return frame, nil
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}
	frame, err := c.readFrame(rawReadWait)
	if errors.Is(err, ErrTimeout) {
		return nil, nil
	}
	return frame, err
}

// ResetInputBuffer discards buffered input on the device link.
func (c *Camera) ResetInputBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	c.buf = nil
	c.pending = nil
	if err := c.t.ResetInput(); err != nil {
		return c.fail(err)
	}
	return nil
}

var _ ptz.Camera = (*Camera)(nil)
