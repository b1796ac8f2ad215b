package router

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fnk59456/uwb-bridge/internal/codec"
)

// Stats counts dispatch outcomes since the router was created.
type Stats struct {
	Dispatched uint64 `json:"dispatched"`
	Unmatched  uint64 `json:"unmatched"`
	Failed     uint64 `json:"failed"`
	Malformed  uint64 `json:"malformed"`
	Panics     uint64 `json:"panics"`
}

// Router maps literal topic names to handlers.
//
// Thread Safety: all methods are safe for concurrent use. Registration
// changes take effect for the next Dispatch.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]Handler
	fallback Handler

	logger Logger

	dispatched atomic.Uint64
	unmatched  atomic.Uint64
	failed     atomic.Uint64
	malformed  atomic.Uint64
	panics     atomic.Uint64
}

// New returns an empty router. A nil logger discards log output.
func New(logger Logger) *Router {
	if logger == nil {
		logger = nopLogger{}
	}
	r := &Router{
		routes: make(map[string]Handler),
		logger: logger,
	}
	r.fallback = r.logAndDrop
	return r
}

// Register binds handler to topic.
//
// Topic filters containing '+' or '#' are rejected; subscribe to the filter
// and register the concrete topics, or handle them in the default handler.
func (r *Router) Register(topic string, handler Handler) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrWildcardTopic, topic)
	}
	if handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[topic]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateRoute, topic)
	}
	r.routes[topic] = handler
	return nil
}

// Unregister removes the handler for topic and reports whether one existed.
func (r *Router) Unregister(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.routes[topic]
	delete(r.routes, topic)
	return ok
}

// SetDefault replaces the handler for unmatched topics. Nil restores the
// built-in log-and-drop behaviour.
func (r *Router) SetDefault(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handler == nil {
		handler = r.logAndDrop
	}
	r.fallback = handler
}

// Topics returns the registered topics in sorted order.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.routes))
	for t := range r.routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Dispatch runs the handler registered for msg.Topic, or the default handler.
//
// Handler errors and panics are logged with the topic and payload and
// returned; Dispatch itself never panics. A returned error concerns only
// this message.
func (r *Router) Dispatch(msg InboundMessage) error {
	r.mu.RLock()
	handler, ok := r.routes[msg.Topic]
	if !ok {
		handler = r.fallback
	}
	r.mu.RUnlock()

	r.dispatched.Add(1)
	if !ok {
		r.unmatched.Add(1)
	}

	err := safeCall(handler, msg)
	if err == nil {
		return nil
	}

	var panicErr *HandlerPanicError
	switch {
	case errors.As(err, &panicErr):
		r.panics.Add(1)
		r.logger.Error("handler panic recovered",
			"topic", msg.Topic,
			"payload", payloadForLog(msg.Payload),
			"panic", panicErr.Value,
			"stack", string(panicErr.Stack),
		)
		return err
	case errors.Is(err, codec.ErrMalformed):
		r.malformed.Add(1)
		args := []any{"topic", msg.Topic, "payload", payloadForLog(msg.Payload), "error", err}
		var merr *codec.MalformedError
		if errors.As(err, &merr) {
			args = append(args, "offset", merr.Offset, "field", merr.Field)
		}
		r.logger.Warn("dropping malformed payload", args...)
	default:
		r.failed.Add(1)
		r.logger.Warn("handler returned error",
			"topic", msg.Topic,
			"payload", payloadForLog(msg.Payload),
			"error", err,
		)
	}
	return fmt.Errorf("%w: topic %q: %w", ErrHandlerFailed, msg.Topic, err)
}

// Stats returns dispatch counters.
func (r *Router) Stats() Stats {
	return Stats{
		Dispatched: r.dispatched.Load(),
		Unmatched:  r.unmatched.Load(),
		Failed:     r.failed.Load(),
		Malformed:  r.malformed.Load(),
		Panics:     r.panics.Load(),
	}
}

func (r *Router) logAndDrop(msg InboundMessage) error {
	r.logger.Debug("no handler for topic, dropping message",
		"topic", msg.Topic,
		"bytes", len(msg.Payload),
	)
	return nil
}

// safeCall invokes handler, converting a panic into *HandlerPanicError.
func safeCall(handler Handler, msg InboundMessage) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &HandlerPanicError{
				Topic:   msg.Topic,
				Payload: msg.Payload,
				Value:   v,
				Stack:   debug.Stack(),
			}
		}
	}()
	return handler(msg)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
