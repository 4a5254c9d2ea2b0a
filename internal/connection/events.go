package connection

// Lifecycle event names.
const (
	EventConnected     = "connected"
	EventConnectFailed = "connect_failed"
	EventDisconnected  = "disconnected"
	EventReconnecting  = "reconnecting"
)

// Event represents a connection lifecycle event.
type Event struct {
	Name   string
	Target string
	Err    error
	Fields map[string]any
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
