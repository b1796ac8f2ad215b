package session

import "errors"

var (
	// ErrInvalidTransition is returned when a status change is not an edge
	// of the connection state machine.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrTerminated is returned for any transition after Terminate.
	ErrTerminated = errors.New("session terminated")
)
