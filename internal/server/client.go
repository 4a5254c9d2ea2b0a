package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"ptz-console/internal/preview"
	"ptz-console/internal/protocol"
	"ptz-console/internal/ptz"
	"ptz-console/internal/session"
)

const (
	// JoystickDeadzone is the magnitude below which an axis counts as centred.
	JoystickDeadzone = 0.05

	initialLogLines = 30
	readTimeout     = 60 * time.Second
	writeTimeout    = 10 * time.Second
	pingPeriod      = 30 * time.Second
)

// Client represents a connected WebSocket client
type Client struct {
	conn    *websocket.Conn
	server  *Server
	console session.Console
	ctx     context.Context
	cancel  context.CancelFunc
	send    chan []byte

	webrtc *preview.Session
	feed   *preview.Subscription

	// Joystick samples are coalesced; moving and zooming are only touched
	// by the flush, which runs with joy.mu held.
	joy struct {
		throttle
		pending protocol.JoystickPayload
	}
	moving  bool
	zooming bool

	mu     sync.Mutex
	closed bool
}

func newClient(s *Server, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(s.ctx)
	c := &Client{
		conn:    conn,
		server:  s,
		console: s.cfg.Console,
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan []byte, 256),
	}
	c.joy.interval = minJoystickInterval
	c.joy.stopCh = ctx.Done()
	c.joy.flush = func() {
		c.reportError(c.handleJoystick(c.joy.pending))
	}
	return c
}

// queueJoystick records the latest sample and lets the throttle apply it.
func (c *Client) queueJoystick(j protocol.JoystickPayload) {
	c.joy.mu.Lock()
	c.joy.pending = j
	c.joy.mu.Unlock()
	c.joy.trigger()
}

func (c *Client) initWebRTC() error {
	servers := c.server.cfg.ICEServers
	if len(servers) == 0 {
		servers = preview.DefaultICEServers
	}
	sess, err := preview.NewSession(preview.Config{
		ICEServers: servers,
		Logger:     c.server.log,
	}, func(candidate webrtc.ICECandidateInit) {
		payload := protocol.ICECandidatePayload{Candidate: candidate.Candidate}
		if candidate.SDPMid != nil {
			payload.SDPMid = *candidate.SDPMid
		}
		if candidate.SDPMLineIndex != nil {
			payload.SDPMLineIndex = *candidate.SDPMLineIndex
		}
		c.sendMessage(protocol.TypeICECandidate, payload)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return sess.Close()
	}
	c.webrtc = sess
	c.mu.Unlock()

	if err := sess.AddH264Track(); err != nil {
		return err
	}
	offer, err := sess.CreateOffer()
	if err != nil {
		return err
	}
	c.sendMessage(protocol.TypeOffer, protocol.SDPPayload{SDP: offer})

	feed := c.server.cfg.Preview.Subscribe()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		feed.Close()
		return nil
	}
	c.feed = feed
	c.mu.Unlock()

	go sess.Forward(feed)
	return nil
}

func (c *Client) session() *preview.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.webrtc
}

// statusPump pushes the status whenever it changes and every new log line.
func (c *Client) statusPump() {
	ticker := time.NewTicker(c.server.cfg.StatusInterval)
	defer ticker.Stop()

	var last protocol.StatusPayload
	first := true
	seq := c.console.LogSeq()
	if entries := c.console.Logs(initialLogLines); len(entries) > 0 {
		c.sendMessage(protocol.TypeLog, protocol.LogPayload{Entries: entries})
	}

	for {
		if st := c.server.statusPayload(); first || st != last {
			c.sendMessage(protocol.TypeStatus, st)
			last, first = st, false
		}

		if now := c.console.LogSeq(); now > seq {
			n := int(min(now-seq, uint64(initialLogLines*100)))
			if entries := c.console.Logs(n); len(entries) > 0 {
				c.sendMessage(protocol.TypeLog, protocol.LogPayload{Entries: entries})
			}
			seq = now
		}

		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Client) sendMessage(msgType string, payload any) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		c.server.log.Error().Err(err).Str("type", msgType).Msg("failed to create message")
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		c.server.log.Error().Err(err).Str("type", msgType).Msg("failed to marshal message")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.server.log.Warn().Str("type", msgType).Msg("client send buffer full, dropping message")
	}
}

func (c *Client) sendError(code, message string) {
	c.sendMessage(protocol.TypeError, protocol.ErrorPayload{Code: code, Message: message})
}

// reportError turns a command failure into an error message for the client.
func (c *Client) reportError(err error) {
	if err == nil {
		return
	}
	code := protocol.ErrCommandFailed
	if ptz.IsConnectivity(err) {
		code = protocol.ErrCameraDisconnected
	}
	c.sendError(code, err.Error())
}

func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Warn().Err(err).Msg("websocket read")
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(protocol.ErrInvalidMessage, "Failed to parse message")
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		var payload protocol.PingPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err.Error())
			return
		}
		c.sendMessage(protocol.TypePong, protocol.PongPayload{
			ClientTimestamp: payload.Timestamp,
			ServerTimestamp: time.Now().UnixMilli(),
		})

	case protocol.TypeCommand:
		var payload protocol.CommandPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err.Error())
			return
		}
		c.reportError(session.Execute(c.ctx, c.console, payload.Name, payload.Arg))

	case protocol.TypeJoystick:
		var payload protocol.JoystickPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err.Error())
			return
		}
		c.queueJoystick(payload)

	case protocol.TypeSpeed:
		var payload protocol.SpeedPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err.Error())
			return
		}
		axis, err := ptz.ParseSpeedAxis(payload.Axis)
		if err != nil {
			c.sendError(protocol.ErrInvalidMessage, err.Error())
			return
		}
		switch {
		case payload.Delta > 0:
			c.console.IncreaseSpeed(axis)
		case payload.Delta < 0:
			c.console.DecreaseSpeed(axis)
		}

	case protocol.TypeConnect:
		var payload protocol.ConnectPayload
		if err := msg.ParsePayload(&payload); err != nil {
			c.sendError(protocol.ErrInvalidMessage, err.Error())
			return
		}
		if payload.Target == "" {
			c.reportError(c.console.Reconnect(c.ctx))
			return
		}
		c.reportError(c.console.Connect(c.ctx, payload.Target))

	case protocol.TypeAnswer:
		var payload protocol.SDPPayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		if sess := c.session(); sess != nil {
			if err := sess.SetAnswer(payload.SDP); err != nil {
				c.server.log.Warn().Err(err).Msg("set answer")
			}
		}

	case protocol.TypeICECandidate:
		var payload protocol.ICECandidatePayload
		if err := msg.ParsePayload(&payload); err != nil {
			return
		}
		if sess := c.session(); sess != nil {
			if err := sess.AddICECandidate(payload.Candidate, payload.SDPMid, payload.SDPMLineIndex); err != nil {
				c.server.log.Warn().Err(err).Msg("add ICE candidate")
			}
		}

	default:
		c.sendError(protocol.ErrInvalidMessage, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// handleJoystick maps an analog sample onto the discrete console commands.
// The dominant pan/tilt direction wins. Every sample outside the deadzone
// re-issues the move, which keeps the motion watchdog from stopping it;
// returning to centre stops the axis.
func (c *Client) handleJoystick(j protocol.JoystickPayload) error {
	var errs []error
	pan, tilt := math.Abs(j.Pan), math.Abs(j.Tilt)

	switch {
	case pan < JoystickDeadzone && tilt < JoystickDeadzone:
		if c.moving {
			c.moving = false
			errs = append(errs, c.console.Stop(c.ctx))
		}
	case pan >= tilt:
		c.moving = true
		if j.Pan > 0 {
			errs = append(errs, c.console.MoveRight(c.ctx))
		} else {
			errs = append(errs, c.console.MoveLeft(c.ctx))
		}
	default:
		c.moving = true
		if j.Tilt > 0 {
			errs = append(errs, c.console.MoveUp(c.ctx))
		} else {
			errs = append(errs, c.console.MoveDown(c.ctx))
		}
	}

	switch {
	case math.Abs(j.Zoom) < JoystickDeadzone:
		if c.zooming {
			c.zooming = false
			errs = append(errs, c.console.ZoomStop(c.ctx))
		}
	case j.Zoom > 0:
		c.zooming = true
		errs = append(errs, c.console.ZoomIn(c.ctx))
	default:
		c.zooming = true
		errs = append(errs, c.console.ZoomOut(c.ctx))
	}

	return errors.Join(errs...)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sess, feed := c.webrtc, c.feed
	c.webrtc, c.feed = nil, nil
	close(c.send)
	c.mu.Unlock()

	c.cancel()
	if feed != nil {
		feed.Close()
	}
	if sess != nil {
		sess.Close()
	}
}
