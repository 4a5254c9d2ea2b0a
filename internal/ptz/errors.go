package ptz

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned when no camera session exists.
var ErrNotConnected = errors.New("camera not connected")

// ConnectivityError reports that the transport to the camera is absent or
// closed. It is never fatal: the next command triggers a reconnect.
type ConnectivityError struct {
	Target string
	Err    error
}

func (e *ConnectivityError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("connectivity: %v", e.Err)
	}
	return fmt.Sprintf("connectivity to %s: %v", e.Target, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err is (or wraps) a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// CommandError reports that the camera rejected or failed a single operation.
// The operation is abandoned; the session stays up.
type CommandError struct {
	Op  string
	Err error
}

func (e *CommandError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *CommandError) Unwrap() error { return e.Err }

// IsCommand reports whether err is (or wraps) a CommandError.
func IsCommand(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

// FieldError reports that one status field could not be read. The snapshot
// carries a sentinel for that field instead.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("status field %s: %v", e.Field, e.Err) }

func (e *FieldError) Unwrap() error { return e.Err }

// IsPartialStatus reports whether err is (or wraps) a FieldError.
func IsPartialStatus(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}
