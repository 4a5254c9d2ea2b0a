// Package preview relays the camera's RTSP video to browser viewers over
// WebRTC. It is optional: the console works without any video source.
package preview

import (
	"sync"

	"ptz-console/internal/metrics"
)

// DefaultBuffer is the per-viewer packet backlog.
const DefaultBuffer = 500

// Hub fans RTP packets out to every subscribed viewer. A viewer that falls
// behind loses packets; it never slows the source down.
type Hub struct {
	buffer  int
	metrics *metrics.Metrics

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is one viewer's packet feed.
type Subscription struct {
	C <-chan []byte

	ch   chan []byte
	hub  *Hub
	once sync.Once
}

// NewHub creates a hub whose viewers buffer up to buffer packets.
func NewHub(buffer int, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer:  buffer,
		metrics: m,
		subs:    make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new viewer. On a closed hub the returned feed is
// already closed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan []byte, h.buffer)
	s := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(ch) })
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Close unsubscribes and closes the feed. It is safe to call twice.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

// Viewers returns the number of live subscriptions.
func (h *Hub) Viewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast offers packet to every viewer and returns how many took it.
func (h *Hub) Broadcast(packet []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.subs {
		select {
		case s.ch <- packet:
			delivered++
			h.metrics.PreviewPacket(true)
		default:
			h.metrics.PreviewPacket(false)
		}
	}
	return delivered
}

// Close ends every feed. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.closed = true
	h.mu.Unlock()

	for s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
}
