package router

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTopic is returned when registering an empty topic.
	ErrEmptyTopic = errors.New("topic is empty")

	// ErrWildcardTopic is returned when registering a topic filter.
	// Routing is by literal topic name only.
	ErrWildcardTopic = errors.New("wildcard topics cannot be routed")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("handler is nil")

	// ErrDuplicateRoute is returned when a topic already has a handler.
	ErrDuplicateRoute = errors.New("topic already registered")

	// ErrHandlerFailed wraps an error returned by a handler.
	ErrHandlerFailed = errors.New("handler failed")

	// ErrHandlerPanic matches any *HandlerPanicError.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrOffloadFull is returned when an Offload queue has no room.
	ErrOffloadFull = errors.New("offload queue full")

	// ErrOffloadClosed is returned after an Offload has been closed.
	ErrOffloadClosed = errors.New("offload closed")
)

// HandlerPanicError carries the context of a recovered handler panic.
type HandlerPanicError struct {
	Topic   string
	Payload []byte
	Value   any
	Stack   []byte
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("handler panicked on topic %q: %v", e.Topic, e.Value)
}

// Is matches ErrHandlerPanic.
func (e *HandlerPanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
