// Package activity holds the console's bounded histories: the activity log
// shown to the operator and the queue of raw messages read from the camera.
package activity

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultLogCapacity is the number of log lines kept.
	DefaultLogCapacity = 100
	// DisplayTail is the number of log lines a console shows.
	DisplayTail = 30
	// DefaultMessageCapacity is the number of raw device messages kept.
	DefaultMessageCapacity = 10
)

// Entry is one activity log line.
type Entry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.At.Format("15:04:05"), e.Message)
}

// Log is a bounded, concurrency-safe activity log.
type Log struct {
	mu    sync.RWMutex
	lines *ring[Entry]
	seq   uint64
	now   func() time.Time
}

// NewLog creates a log holding at most capacity entries.
func NewLog(capacity int) *Log {
	return &Log{lines: newRing[Entry](capacity), now: time.Now}
}

// Add appends a message stamped with the current time and returns the entry.
func (l *Log) Add(msg string) Entry {
	e := Entry{At: l.now(), Message: msg}
	l.mu.Lock()
	l.lines.push(e)
	l.seq++
	l.mu.Unlock()
	return e
}

// Tail returns up to n of the newest entries, oldest first.
func (l *Log) Tail(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lines.tail(n)
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lines.n
}

// Seq returns the total number of entries ever added. Consoles use it to
// detect new lines without diffing.
func (l *Log) Seq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Since returns the entries added after seq that are still held, oldest
// first, together with the current sequence number.
func (l *Log) Since(seq uint64) ([]Entry, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq >= l.seq {
		return nil, l.seq
	}
	n := l.seq - seq
	if n > uint64(l.lines.n) {
		n = uint64(l.lines.n)
	}
	return l.lines.tail(int(n)), l.seq
}

// Text renders the newest n entries one per line.
func (l *Log) Text(n int) string {
	entries := l.Tail(n)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Queue is a bounded, concurrency-safe queue of raw device messages.
type Queue struct {
	mu   sync.Mutex
	msgs *ring[[]byte]
}

// NewQueue creates a queue holding at most capacity messages.
func NewQueue(capacity int) *Queue {
	return &Queue{msgs: newRing[[]byte](capacity)}
}

// Push appends a copy of msg, evicting the oldest message when full.
func (q *Queue) Push(msg []byte) {
	cp := make([]byte, len(msg))
	copy(cp, msg)
	q.mu.Lock()
	q.msgs.push(cp)
	q.mu.Unlock()
}

// Tail returns up to n of the newest messages, oldest first.
func (q *Queue) Tail(n int) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.msgs.tail(n)
}

// Len returns the number of messages held.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.msgs.n
}

// Clear drops every message.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.msgs.clear()
	q.mu.Unlock()
}

// FormatMessage renders a raw VISCA frame as spaced upper-case hex.
func FormatMessage(msg []byte) string {
	s := strings.ToUpper(hex.EncodeToString(msg))
	var b strings.Builder
	for i := 0; i < len(s); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s[i : i+2])
	}
	return b.String()
}
