package visca

import (
	"encoding/binary"
	"sync"
	"time"
)

// Telnet and RFC 2217 constants.
const (
	iac  = 0xFF
	dont = 0xFE
	do   = 0xFD
	wont = 0xFC
	will = 0xFB
	sb   = 0xFA
	se   = 0xF0

	optBinary  = 0x00
	optSGA     = 0x03
	optComPort = 0x2C

	comSetBaud     = 1
	comSetDataSize = 2
	comSetParity   = 3
	comSetStopSize = 4
)

type telnetState int

const (
	stData telnetState = iota
	stIAC
	stOption
	stSub
	stSubIAC
)

// telnetTransport speaks to an RFC 2217 serial server: data bytes equal to
// IAC are doubled on the way out and telnet commands are stripped on the way
// in. Only BINARY, SGA and COM-PORT-OPTION are accepted.
type telnetTransport struct {
	inner *connTransport

	mu    sync.Mutex
	state telnetState
	verb  byte
	reply []byte
}

func newTelnetTransport(inner *connTransport) *telnetTransport {
	return &telnetTransport{inner: inner}
}

// configure announces the options we use and sets the remote port to
// baud 8N1.
func (t *telnetTransport) configure(baud uint32) error {
	var b []byte
	b = append(b, iac, will, optBinary, iac, do, optBinary)
	b = append(b, iac, will, optSGA, iac, do, optSGA)
	b = append(b, iac, will, optComPort)

	rate := make([]byte, 4)
	binary.BigEndian.PutUint32(rate, baud)
	b = append(b, subnegotiation(comSetBaud, rate...)...)
	b = append(b, subnegotiation(comSetDataSize, 8)...)
	b = append(b, subnegotiation(comSetParity, 1)...)
	b = append(b, subnegotiation(comSetStopSize, 1)...)
	_, err := t.inner.Write(b)
	return err
}

func subnegotiation(cmd byte, value ...byte) []byte {
	b := []byte{iac, sb, optComPort, cmd}
	b = append(b, escapeIAC(value)...)
	return append(b, iac, se)
}

func escapeIAC(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for _, c := range p {
		out = append(out, c)
		if c == iac {
			out = append(out, iac)
		}
	}
	return out
}

func accepted(opt byte) bool {
	return opt == optBinary || opt == optSGA || opt == optComPort
}

// filter strips telnet commands from raw, returning the data bytes and
// queuing negotiation answers.
func (t *telnetTransport) filter(raw []byte) []byte {
	out := raw[:0]
	for _, c := range raw {
		switch t.state {
		case stData:
			if c == iac {
				t.state = stIAC
			} else {
				out = append(out, c)
			}
		case stIAC:
			switch c {
			case iac:
				out = append(out, iac)
				t.state = stData
			case do, dont, will, wont:
				t.verb = c
				t.state = stOption
			case sb:
				t.state = stSub
			default:
				t.state = stData
			}
		case stOption:
			t.answer(t.verb, c)
			t.state = stData
		case stSub:
			if c == iac {
				t.state = stSubIAC
			}
		case stSubIAC:
			if c == se {
				t.state = stData
			} else {
				t.state = stSub
			}
		}
	}
	return out
}

func (t *telnetTransport) answer(verb, opt byte) {
	switch verb {
	case do:
		if accepted(opt) {
			return
		}
		t.reply = append(t.reply, iac, wont, opt)
	case will:
		if accepted(opt) {
			return
		}
		t.reply = append(t.reply, iac, dont, opt)
	}
}

func (t *telnetTransport) Read(p []byte) (int, error) {
	buf := make([]byte, len(p))
	n, err := t.inner.Read(buf)
	if n == 0 {
		return 0, err
	}

	t.mu.Lock()
	data := t.filter(buf[:n])
	reply := t.reply
	t.reply = nil
	t.mu.Unlock()

	if len(reply) > 0 {
		if _, werr := t.inner.Write(reply); werr != nil {
			return 0, werr
		}
	}
	return copy(p, data), err
}

func (t *telnetTransport) Write(p []byte) (int, error) {
	if _, err := t.inner.Write(escapeIAC(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *telnetTransport) SetReadTimeout(d time.Duration) error { return t.inner.SetReadTimeout(d) }

func (t *telnetTransport) ResetInput() error {
	t.mu.Lock()
	t.state = stData
	t.mu.Unlock()
	return t.inner.ResetInput()
}

func (t *telnetTransport) Close() error { return t.inner.Close() }
