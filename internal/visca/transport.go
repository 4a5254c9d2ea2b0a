package visca

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DialTimeout bounds how long opening a network transport may take.
const DialTimeout = 5 * time.Second

// Transport is a byte stream to a camera. Read returns (0, nil) when no data
// arrived within the read timeout; any other error means the link is gone.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(d time.Duration) error
	ResetInput() error
	Close() error
}

// OpenTransport opens the transport named by target:
//
//	udp://host:port   VISCA over IP
//	tcp://host:port   raw VISCA over TCP
//	host:port         RFC 2217 serial server
//	anything else     local serial device (9600 8N1)
func OpenTransport(ctx context.Context, target string) (Transport, error) {
	switch {
	case strings.HasPrefix(target, "udp://"):
		conn, err := dial(ctx, "udp", strings.TrimPrefix(target, "udp://"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to VISCA over UDP: %w", err)
		}
		return &ipTransport{conn: newConnTransport(conn)}, nil
	case strings.HasPrefix(target, "tcp://"):
		conn, err := dial(ctx, "tcp", strings.TrimPrefix(target, "tcp://"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to VISCA over TCP: %w", err)
		}
		return newConnTransport(conn), nil
	case isHostPort(target):
		conn, err := dial(ctx, "tcp", target)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to serial server: %w", err)
		}
		t := newTelnetTransport(newConnTransport(conn))
		if err := t.configure(9600); err != nil {
			t.Close()
			return nil, fmt.Errorf("failed to configure serial server: %w", err)
		}
		return t, nil
	default:
		port, err := serial.Open(target, &serial.Mode{
			BaudRate: 9600,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", target, err)
		}
		return &serialTransport{port: port}, nil
	}
}

func dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: DialTimeout}
	return d.DialContext(ctx, network, addr)
}

// isHostPort reports whether target looks like host:port rather than a
// device path such as /dev/ttyUSB0 or COM3.
func isHostPort(target string) bool {
	if strings.HasPrefix(target, "/") {
		return false
	}
	host, port, err := net.SplitHostPort(target)
	return err == nil && host != "" && port != ""
}

type serialTransport struct {
	port serial.Port
}

func (s *serialTransport) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *serialTransport) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *serialTransport) ResetInput() error           { return s.port.ResetInputBuffer() }
func (s *serialTransport) Close() error                { return s.port.Close() }

func (s *serialTransport) SetReadTimeout(d time.Duration) error {
	return s.port.SetReadTimeout(d)
}

// connTransport adapts a net.Conn to serial-port read semantics.
type connTransport struct {
	conn    net.Conn
	timeout time.Duration
}

func newConnTransport(conn net.Conn) *connTransport {
	return &connTransport{conn: conn, timeout: 100 * time.Millisecond}
}

func (c *connTransport) Read(p []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

func (c *connTransport) Write(p []byte) (int, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(time.Second)); err != nil {
		return 0, err
	}
	return c.conn.Write(p)
}

func (c *connTransport) SetReadTimeout(d time.Duration) error {
	c.timeout = d
	return nil
}

// ResetInput discards whatever is already buffered on the socket.
func (c *connTransport) ResetInput() error {
	saved := c.timeout
	defer func() { c.timeout = saved }()
	c.timeout = time.Millisecond
	buf := make([]byte, 256)
	for {
		n, err := c.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (c *connTransport) Close() error { return c.conn.Close() }

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// ipTransport frames every write in the VISCA-over-IP header and strips it
// from every datagram read.
type ipTransport struct {
	conn *connTransport

	mu     sync.Mutex
	seqNum uint32
}

const (
	ipCommand  = 0x0100
	ipInquiry  = 0x0110
	headerSize = 8
)

// buildVISCAOverIP wraps a VISCA frame in VISCA-over-IP framing.
func (t *ipTransport) buildVISCAOverIP(frame []byte) []byte {
	// Bytes 0-1: payload type, 2-3: payload length, 4-7: sequence number
	kind := uint16(ipCommand)
	if len(frame) > 1 && frame[1] == 0x09 {
		kind = ipInquiry
	}
	t.mu.Lock()
	seq := t.seqNum
	t.seqNum++
	t.mu.Unlock()

	packet := make([]byte, headerSize, headerSize+len(frame))
	binary.BigEndian.PutUint16(packet[0:2], kind)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(frame)))
	binary.BigEndian.PutUint32(packet[4:8], seq)
	return append(packet, frame...)
}

func (t *ipTransport) Write(p []byte) (int, error) {
	if _, err := t.conn.Write(t.buildVISCAOverIP(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *ipTransport) Read(p []byte) (int, error) {
	buf := make([]byte, headerSize+len(p))
	n, err := t.conn.Read(buf)
	if err != nil || n == 0 {
		return 0, err
	}
	if n <= headerSize {
		// Control replies carry no VISCA payload.
		return 0, nil
	}
	return copy(p, buf[headerSize:n]), nil
}

func (t *ipTransport) SetReadTimeout(d time.Duration) error { return t.conn.SetReadTimeout(d) }
func (t *ipTransport) ResetInput() error                    { return t.conn.ResetInput() }
func (t *ipTransport) Close() error                         { return t.conn.Close() }
