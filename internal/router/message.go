package router

import (
	"time"

	"github.com/fnk59456/uwb-bridge/internal/codec"
)

// InboundMessage is one delivery from the broker. It is created per
// delivery and not retained after dispatch.
type InboundMessage struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time

	// Decoded is set once a Decoded handler has parsed Payload, so handlers
	// further down, such as an Offload, do not parse it again.
	Decoded codec.Message
}

// Handler processes one inbound message.
type Handler func(msg InboundMessage) error

// Logger is the logging surface the router needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// maxLoggedPayload bounds how much of a payload goes into a log line.
const maxLoggedPayload = 256

func payloadForLog(p []byte) string {
	if len(p) > maxLoggedPayload {
		return string(p[:maxLoggedPayload]) + "..."
	}
	return string(p)
}
