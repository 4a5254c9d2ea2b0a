// Package session composes the connection manager, motion watchdog, status
// poller and activity history behind one command surface. It is structured
// into small files by concern:
//
//   - orchestrator.go: Orchestrator type, constructor, read-only views.
//   - commands.go: device commands and the fixed command protocol.
//   - speeds.go: local speed settings (no device traffic).
//   - cycle.go: the background cycle and snapshot publication.
//   - events.go: connection lifecycle events turned into status messages.
//
// Every device call goes through the connection manager's gate. Motion
// commands register with the watchdog while the gate is still held, so a
// timeout decision never falls between a command and its registration.
package session
