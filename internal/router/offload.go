package router

import (
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultOffloadSize is the queue length used when NewOffload gets size <= 0.
const DefaultOffloadSize = 256

// Offload runs a slow handler on its own goroutine behind a bounded queue,
// so that registering Offload.Handle keeps dispatch non-blocking.
//
// Messages are handled one at a time, in the order they were accepted.
type Offload struct {
	handler Handler
	logger  Logger
	queue   chan InboundMessage

	mu     sync.RWMutex
	closed bool

	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewOffload starts a worker for handler. A nil logger discards output.
func NewOffload(handler Handler, size int, logger Logger) *Offload {
	if size <= 0 {
		size = DefaultOffloadSize
	}
	if logger == nil {
		logger = nopLogger{}
	}
	o := &Offload{
		handler: handler,
		logger:  logger,
		queue:   make(chan InboundMessage, size),
	}
	o.wg.Add(1)
	go o.run()
	return o
}

// Handle enqueues msg without blocking. It returns ErrOffloadFull when the
// worker is behind and ErrOffloadClosed after Close.
func (o *Offload) Handle(msg InboundMessage) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return ErrOffloadClosed
	}
	select {
	case o.queue <- msg:
		return nil
	default:
		o.dropped.Add(1)
		return ErrOffloadFull
	}
}

// Dropped returns how many messages were refused because the queue was full.
func (o *Offload) Dropped() uint64 {
	return o.dropped.Load()
}

// Close stops accepting messages, lets the worker finish what is queued,
// and waits for it. Safe to call more than once.
func (o *Offload) Close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Offload) run() {
	defer o.wg.Done()
	for msg := range o.queue {
		if err := safeCall(o.handler, msg); err != nil {
			var panicErr *HandlerPanicError
			if errors.As(err, &panicErr) {
				o.logger.Error("offloaded handler panic recovered",
					"topic", msg.Topic,
					"payload", payloadForLog(msg.Payload),
					"panic", panicErr.Value,
				)
				continue
			}
			o.logger.Warn("offloaded handler returned error",
				"topic", msg.Topic,
				"error", err,
			)
		}
	}
}
