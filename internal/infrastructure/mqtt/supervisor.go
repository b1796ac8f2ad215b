package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fnk59456/uwb-bridge/internal/router"
	"github.com/fnk59456/uwb-bridge/internal/session"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Dispatcher receives inbound deliveries. *router.Router satisfies it.
type Dispatcher interface {
	Dispatch(msg router.InboundMessage) error
}

// PublishRequest is one outbound message.
type PublishRequest struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool

	// Sequence is the generator's sequence number, recorded in the session
	// when HasSequence is set.
	Sequence    uint64
	HasSequence bool
}

// Supervisor owns the broker session: it connects, re-subscribes, detects
// connection loss and reconnects with capped exponential backoff until
// shut down. All transport I/O goes through it.
//
// Inbound deliveries are handed to the Dispatcher on a dedicated goroutine
// in arrival order. Publishes are sent immediately while connected and
// queued otherwise; queued publishes are flushed in submission order on the
// next successful connection.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Run may be called once; Close may be called any number of times.
type Supervisor struct {
	opts       Options
	transport  Transport
	dispatcher Dispatcher
	state      *session.State
	backoff    *Backoff
	logger     Logger

	// mu guards the queue and serialises transport publishes, so direct
	// and queued sends leave in submission order.
	mu      sync.Mutex
	queue   []*Ticket
	space   chan struct{} // closed and replaced when queue room frees up
	nextID  uint64
	closing bool

	// subMu serialises subscription changes against re-subscription.
	subMu sync.Mutex

	inbound chan router.InboundMessage
	lost    chan error

	running      atomic.Bool
	done         chan struct{} // closed when shutdown is requested
	abort        chan struct{} // closed after the final disconnect
	stopped      chan struct{} // closed when shutdown has completed
	closeOnce    sync.Once
	shutdownOnce sync.Once
	inflight     sync.WaitGroup
	workers      sync.WaitGroup

	now func() time.Time
}

// NewSupervisor creates a supervisor for transport. Deliveries go to
// dispatcher; a nil dispatcher drops them.
func NewSupervisor(transport Transport, dispatcher Dispatcher, opts Options) (*Supervisor, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is nil", ErrConnectionFailed)
	}
	opts = opts.withDefaults()
	if dispatcher == nil {
		dispatcher = dropDispatcher{}
	}

	return &Supervisor{
		opts:       opts,
		transport:  transport,
		dispatcher: dispatcher,
		state:      session.New(),
		backoff:    NewBackoff(opts.Backoff),
		logger:     opts.Logger,
		space:      make(chan struct{}),
		inbound:    make(chan router.InboundMessage, opts.InboundBuffer),
		lost:       make(chan error, 1),
		done:       make(chan struct{}),
		abort:      make(chan struct{}),
		stopped:    make(chan struct{}),
		now:        time.Now,
	}, nil
}

// Session returns a read-only view of the session state.
func (s *Supervisor) Session() session.Reader {
	return s.state
}

// Backoff exposes the reconnect delay generator.
func (s *Supervisor) Backoff() *Backoff {
	return s.backoff
}

// Run drives the connection state machine until ctx is cancelled or Close
// is called, then shuts down per the configured policy. It returns nil
// after a clean shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.shutdown()

	// Close must interrupt an in-progress connect or subscribe, not just
	// the backoff wait.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if s.shutdownRequested(ctx) {
		return nil
	}

	s.workers.Add(1)
	go s.inboundLoop()

	var attempt uint64
	for {
		if s.shutdownRequested(ctx) {
			return nil
		}
		if err := s.state.Transition(session.StatusConnecting); err != nil {
			return err
		}
		attempt++
		s.drainLost()

		s.logger.Debug("connecting to broker", "attempt", attempt)
		if err := s.transport.Connect(ctx, s.handlers()); err != nil {
			if s.shutdownRequested(ctx) {
				return nil
			}
			terr := &TransportError{Attempt: attempt, Err: err}
			s.state.RecordError(terr)
			if err := s.state.Transition(session.StatusReconnecting); err != nil {
				return err
			}
			delay := s.backoff.Next()
			s.logger.Warn("broker connection failed",
				"attempt", attempt,
				"retry_in", delay.String(),
				"error", err,
			)
			if !s.sleep(ctx, delay) {
				return nil
			}
			continue
		}

		s.backoff.Reset()
		s.onConnected(ctx, attempt)
		attempt = 0

		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case err := <-s.lost:
			s.state.RecordError(err)
			if err := s.state.Transition(session.StatusReconnecting); err != nil {
				return err
			}
			delay := s.backoff.Next()
			s.logger.Warn("broker connection lost",
				"retry_in", delay.String(),
				"error", err,
			)
			if !s.sleep(ctx, delay) {
				return nil
			}
		}
	}
}

// onConnected marks the session Connected, flushes the queue and restores
// subscriptions.
func (s *Supervisor) onConnected(ctx context.Context, attempt uint64) {
	s.mu.Lock()
	if err := s.state.Transition(session.StatusConnected); err != nil {
		s.mu.Unlock()
		s.logger.Error("session transition failed", "error", err)
		return
	}
	if s.opts.StatusTopic != "" {
		s.transport.Publish(s.opts.StatusTopic, s.opts.QoS, true, buildOnlinePayload(s.opts.ClientID))
	}
	flushed := len(s.queue)
	for _, t := range s.queue {
		s.sendLocked(t)
	}
	s.queue = nil
	s.notifySpaceLocked()
	s.mu.Unlock()

	s.logger.Info("connected to broker", "attempts", attempt, "flushed", flushed)
	s.resubscribe(ctx)
}

// resubscribe subscribes to every topic recorded in the session. The
// broker may still hold them; subscribing again is harmless.
func (s *Supervisor) resubscribe(ctx context.Context) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, sub := range s.state.Subscriptions() {
		tok := s.transport.Subscribe(sub.Topic, sub.QoS)
		if err := waitToken(ctx, tok, s.opts.OperationTimeout); err != nil {
			s.logger.Warn("resubscribe failed", "topic", sub.Topic, "error", err)
		}
	}
}

func (s *Supervisor) handlers() TransportHandlers {
	return TransportHandlers{
		OnMessage: func(topic string, payload []byte) {
			msg := router.InboundMessage{Topic: topic, Payload: payload, ReceivedAt: s.now()}
			select {
			case s.inbound <- msg:
			case <-s.done:
			}
		},
		OnConnectionLost: func(err error) {
			select {
			case s.lost <- err:
			default:
			}
		},
	}
}

// drainLost discards a loss signal left over from a previous connection.
func (s *Supervisor) drainLost() {
	select {
	case <-s.lost:
	default:
	}
}

// sleep waits d, returning false if shutdown was requested first.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

func (s *Supervisor) shutdownRequested(ctx context.Context) bool {
	select {
	case <-s.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// inboundLoop hands deliveries to the dispatcher one at a time.
func (s *Supervisor) inboundLoop() {
	defer s.workers.Done()

	for {
		select {
		case msg := <-s.inbound:
			s.deliver(msg)
		case <-s.done:
			for {
				select {
				case msg := <-s.inbound:
					s.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (s *Supervisor) deliver(msg router.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dispatcher panic recovered", "topic", msg.Topic, "panic", r)
		}
	}()
	s.state.RecordInbound(msg.ReceivedAt)
	_ = s.dispatcher.Dispatch(msg)
}

// Publish sends req, or queues it while the session is not connected.
//
// The returned Ticket resolves when the broker confirms or the publish
// fails. When the queue is full, DropNewest rejects the request with an
// error matching both ErrNotConnected and ErrQueueFull; Block waits for
// room until ctx is done or the supervisor shuts down. With queueing
// disabled a disconnected publish fails with ErrNotConnected.
func (s *Supervisor) Publish(ctx context.Context, req PublishRequest) (*Ticket, error) {
	if err := validatePublish(req); err != nil {
		return nil, err
	}
	if req.HasSequence {
		s.state.RecordSequence(req.Sequence)
	}

	for {
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			return nil, ErrShutdown
		}

		if s.state.IsConnected() && len(s.queue) == 0 {
			t := s.acceptLocked(req)
			s.sendLocked(t)
			s.mu.Unlock()
			return t, nil
		}

		if s.opts.QueueCapacity == 0 {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: outbound queue disabled", ErrNotConnected)
		}

		if len(s.queue) < s.opts.QueueCapacity {
			t := s.acceptLocked(req)
			s.queue = append(s.queue, t)
			depth := len(s.queue)
			s.mu.Unlock()
			s.logger.Debug("publish queued", "topic", req.Topic, "id", t.ID, "depth", depth)
			return t, nil
		}

		if s.opts.Overflow == DropNewest {
			s.mu.Unlock()
			s.logger.Warn("publish rejected, queue full", "topic", req.Topic, "capacity", s.opts.QueueCapacity)
			return nil, fmt.Errorf("%w: %w", ErrNotConnected, ErrQueueFull)
		}

		space := s.space
		s.mu.Unlock()

		select {
		case <-space:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for queue space: %w", ctx.Err())
		case <-s.done:
			return nil, ErrShutdown
		}
	}
}

func validatePublish(req PublishRequest) error {
	if req.Topic == "" || strings.ContainsAny(req.Topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, req.Topic)
	}
	if req.QoS > maxQoS {
		return ErrInvalidQoS
	}
	if len(req.Payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds maximum %d", ErrPayloadTooLarge, len(req.Payload), maxPayloadSize)
	}
	return nil
}

func (s *Supervisor) acceptLocked(req PublishRequest) *Ticket {
	s.nextID++
	return newTicket(s.nextID, req, s.now())
}

// sendLocked hands t to the transport. Caller holds s.mu.
func (s *Supervisor) sendLocked(t *Ticket) {
	req := t.Request
	tok := s.transport.Publish(req.Topic, req.QoS, req.Retained, req.Payload)
	s.track(t, tok)
}

// track resolves t from the transport token.
func (s *Supervisor) track(t *Ticket, tok Token) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		timer := time.NewTimer(s.opts.OperationTimeout)
		defer timer.Stop()

		select {
		case <-tok.Done():
			if err := tok.Error(); err != nil {
				t.fail(fmt.Errorf("%w: %w", ErrPublishFailed, err))
				s.logger.Warn("publish failed", "topic", t.Request.Topic, "id", t.ID, "error", err)
				return
			}
			s.state.RecordAck(t.ID)
			t.acknowledge()
		case <-timer.C:
			t.fail(fmt.Errorf("%w: %w after %v", ErrPublishFailed, ErrTimeout, s.opts.OperationTimeout))
			s.logger.Warn("publish timed out", "topic", t.Request.Topic, "id", t.ID)
		case <-s.abort:
			t.fail(ErrShutdown)
		}
	}()
}

func (s *Supervisor) notifySpaceLocked() {
	close(s.space)
	s.space = make(chan struct{})
}

// QueueLength returns the number of publishes waiting for a connection.
func (s *Supervisor) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Subscribe records topic in the session and, while connected, subscribes
// on the broker. Recorded topics are subscribed again after every
// reconnect, so a topic added while disconnected takes effect on the next
// connection. A failed broker subscribe keeps the record for the next
// reconnect.
func (s *Supervisor) Subscribe(ctx context.Context, topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.state.AddSubscription(topic, qos)
	if !s.state.IsConnected() {
		return nil
	}

	if err := waitToken(ctx, s.transport.Subscribe(topic, qos), s.opts.OperationTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Unsubscribe forgets topic and, while connected, unsubscribes on the broker.
func (s *Supervisor) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.state.RemoveSubscription(topic)
	if !s.state.IsConnected() {
		return nil
	}

	if err := waitToken(ctx, s.transport.Unsubscribe(topic), s.opts.OperationTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// HealthCheck reports whether the session is connected.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if status := s.state.Status(); status != session.StatusConnected {
		return fmt.Errorf("%w: session is %s", ErrNotConnected, status)
	}
	return nil
}

// Close requests shutdown and waits for it to complete.
//
// Queued publishes are drained or discarded per the shutdown policy, the
// offline status is published, and the transport is disconnected. Pending
// tickets that cannot complete resolve with ErrShutdown. Blocked Publish
// calls and backoff waits return immediately.
func (s *Supervisor) Close() error {
	s.requestShutdown()
	if s.running.Load() {
		<-s.stopped
		return nil
	}
	s.shutdown()
	return nil
}

func (s *Supervisor) requestShutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// shutdown runs once, from Run's exit or from Close when Run never started.
func (s *Supervisor) shutdown() {
	s.shutdownOnce.Do(func() {
		s.requestShutdown()

		connected := s.state.IsConnected()

		s.mu.Lock()
		s.closing = true
		pending := s.queue
		s.queue = nil
		drain := s.opts.Shutdown == Drain && connected
		for _, t := range pending {
			if drain {
				s.sendLocked(t)
			} else {
				t.fail(ErrShutdown)
			}
		}
		s.notifySpaceLocked()
		s.mu.Unlock()

		if len(pending) > 0 {
			s.logger.Info("outbound queue closed", "pending", len(pending), "policy", s.opts.Shutdown.String(), "sent", drain)
		}

		if connected {
			if s.opts.Shutdown == Drain {
				s.waitInflight(s.opts.DrainTimeout)
			}
			if s.opts.StatusTopic != "" {
				s.mu.Lock()
				tok := s.transport.Publish(s.opts.StatusTopic, s.opts.QoS, true, buildOfflinePayload(s.opts.ClientID))
				s.mu.Unlock()
				_ = waitToken(context.Background(), tok, s.opts.OperationTimeout)
			}
		}
		// Also sent when not connected, to abort an attempt that was still
		// in flight when shutdown began.
		s.transport.Disconnect(defaultDisconnectQuiesce)

		close(s.abort)
		s.inflight.Wait()
		s.state.Terminate()
		s.workers.Wait()

		s.logger.Info("mqtt supervisor stopped")
		close(s.stopped)
	})
}

// waitInflight waits for outstanding tickets, up to timeout.
func (s *Supervisor) waitInflight(timeout time.Duration) {
	finished := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(finished)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-finished:
	case <-timer.C:
		s.logger.Warn("drain timeout, abandoning in-flight publishes", "timeout", timeout.String())
	}
}

type dropDispatcher struct{}

func (dropDispatcher) Dispatch(router.InboundMessage) error { return nil }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
