package connection

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected    = errors.New("backend channel not connected")
	ErrAttemptInFlight = errors.New("connection attempt already in flight")
	ErrAlreadyOpen     = errors.New("backend channel already open")
	ErrStopped         = errors.New("connection manager stopped")
	ErrSendBufferFull  = errors.New("send buffer full")

	// ErrClosed is the cause reported when the channel is closed locally.
	// It never triggers a reconnect.
	ErrClosed = errors.New("channel closed locally")
)

// Kind classifies why an open attempt failed.
type Kind string

const (
	KindInvalidTarget Kind = "invalid_target"
	KindProbe         Kind = "probe"
	KindTimeout       Kind = "timeout"
	KindNetwork       Kind = "network"
	KindRejected      Kind = "rejected"
	KindCanceled      Kind = "canceled"
)

// Error is a failed open attempt.
type Error struct {
	Kind   Kind
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("open %s: %s: %v", e.Target, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
