package mqtt

import (
	"errors"
	"fmt"
)

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when a publish cannot be sent or queued
	// because the session is not connected and the queue is full or disabled.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrQueueFull accompanies ErrNotConnected when the outbound queue
	// rejected a request.
	ErrQueueFull = errors.New("mqtt: outbound queue full")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when the broker did not confirm a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrPayloadTooLarge is returned for payloads above maxPayloadSize.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")

	// ErrShutdown is returned once the supervisor is shutting down, and
	// resolves tickets that could not be sent before it stopped.
	ErrShutdown = errors.New("mqtt: supervisor shut down")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("mqtt: supervisor already running")
)

// TransportError describes a failed connection attempt. It matches
// ErrConnectionFailed.
type TransportError struct {
	Attempt uint64
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mqtt: connection attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches ErrConnectionFailed.
func (e *TransportError) Is(target error) bool {
	return target == ErrConnectionFailed
}
