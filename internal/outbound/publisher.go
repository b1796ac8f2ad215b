package outbound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/fnk59456/uwb-bridge/internal/codec"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/mqtt"
)

// Sender accepts publish requests. *mqtt.Supervisor satisfies it.
type Sender interface {
	Publish(ctx context.Context, req mqtt.PublishRequest) (*mqtt.Ticket, error)
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Publisher.
type Options struct {
	// Topic every generated message is published to.
	Topic    string
	QoS      byte
	Retained bool

	// StartSequence is the first sequence number handed out.
	StartSequence uint64

	// Generator builds records. Defaults to an AnchorGenerator with zero ids.
	Generator Generator

	Logger Logger
}

// Outbound is a generated message bound for the broker.
type Outbound struct {
	Topic    string
	Sequence uint64
	Message  codec.Message
}

// Stats counts publisher activity since start.
type Stats struct {
	Generated    uint64 `json:"generated"`
	Accepted     uint64 `json:"accepted"`
	Rejected     uint64 `json:"rejected"`
	Acknowledged uint64 `json:"acknowledged"`
	Failed       uint64 `json:"failed"`
}

// Publisher generates sequenced records and hands them to a Sender.
//
// Thread Safety: all methods are safe for concurrent use.
type Publisher struct {
	sender Sender
	opts   Options
	logger Logger

	// next is the sequence the next NextMessage call takes.
	next atomic.Uint64

	// sendLock serialises sequence assignment with the hand-off to the
	// sender so the transport sees sequences in order. A channel rather
	// than a mutex lets a waiting caller give up when its ctx is done.
	sendLock chan struct{}

	generated    atomic.Uint64
	accepted     atomic.Uint64
	rejected     atomic.Uint64
	acknowledged atomic.Uint64
	failed       atomic.Uint64
}

// New creates a Publisher sending through sender.
func New(sender Sender, opts Options) (*Publisher, error) {
	if sender == nil {
		return nil, ErrNoSender
	}
	if opts.Topic == "" || strings.ContainsAny(opts.Topic, "+#") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, opts.Topic)
	}
	if opts.Generator == nil {
		opts.Generator = AnchorGenerator{}
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}

	p := &Publisher{
		sender:   sender,
		opts:     opts,
		logger:   opts.Logger,
		sendLock: make(chan struct{}, 1),
	}
	p.next.Store(opts.StartSequence)
	return p, nil
}

// NextMessage generates the next record. Each call consumes exactly one
// sequence number.
//
// Records from NextMessage handed to Publish by concurrent callers may
// reach the broker out of order; Send, SendN and Run keep the order.
func (p *Publisher) NextMessage() Outbound {
	seq := p.next.Add(1) - 1
	p.generated.Add(1)

	return Outbound{
		Topic:    p.opts.Topic,
		Sequence: seq,
		Message:  p.opts.Generator.Generate(seq),
	}
}

// Publish encodes out and submits it. The returned ticket resolves when
// the broker confirms the publish or it fails.
func (p *Publisher) Publish(ctx context.Context, out Outbound) (*mqtt.Ticket, error) {
	payload, err := codec.Encode(out.Message)
	if err != nil {
		p.rejected.Add(1)
		return nil, fmt.Errorf("%w: sequence %d: %w", ErrEncode, out.Sequence, err)
	}

	topic := out.Topic
	if topic == "" {
		topic = p.opts.Topic
	}

	ticket, err := p.sender.Publish(ctx, mqtt.PublishRequest{
		Topic:       topic,
		Payload:     payload,
		QoS:         p.opts.QoS,
		Retained:    p.opts.Retained,
		Sequence:    out.Sequence,
		HasSequence: true,
	})
	if err != nil {
		p.rejected.Add(1)
		return nil, err
	}

	p.accepted.Add(1)
	return ticket, nil
}

// Send generates the next record and publishes it. Concurrent Send calls
// reach the sender in sequence order.
func (p *Publisher) Send(ctx context.Context) (*mqtt.Ticket, error) {
	_, ticket, err := p.send(ctx)
	return ticket, err
}

// send takes the next sequence and publishes it as one ordered step.
// No sequence is consumed when ctx ends before the step starts.
func (p *Publisher) send(ctx context.Context) (Outbound, *mqtt.Ticket, error) {
	select {
	case p.sendLock <- struct{}{}:
	case <-ctx.Done():
		return Outbound{}, nil, ctx.Err()
	}
	defer func() { <-p.sendLock }()

	out := p.NextMessage()
	ticket, err := p.Publish(ctx, out)
	return out, ticket, err
}

// SendN sends n records, paced by limiter when it is non-nil. It stops at
// the first error and returns the tickets accepted so far.
func (p *Publisher) SendN(ctx context.Context, n int, limiter *rate.Limiter) ([]*mqtt.Ticket, error) {
	tickets := make([]*mqtt.Ticket, 0, n)
	for i := 0; i < n; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return tickets, fmt.Errorf("pacing burst: %w", err)
			}
		}
		t, err := p.Send(ctx)
		if err != nil {
			return tickets, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// Run sends one record per schedule tick until ctx is cancelled, the
// schedule finishes or the sender shuts down. Rejected publishes are
// logged and do not stop the loop. Run returns after every ticket it
// produced has resolved or ctx is done.
func (p *Publisher) Run(ctx context.Context, schedule Schedule) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := schedule.Wait(ctx); err != nil {
			if errors.Is(err, ErrScheduleDone) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		out, ticket, err := p.send(ctx)
		if err != nil {
			if errors.Is(err, mqtt.ErrShutdown) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("outbound publish rejected",
				"topic", out.Topic, "sequence", out.Sequence, "error", err)
			continue
		}

		p.logger.Debug("outbound publish accepted",
			"topic", out.Topic, "sequence", out.Sequence, "id", ticket.ID)

		wg.Add(1)
		go func() {
			defer wg.Done()
			p.observe(ctx, out, ticket)
		}()
	}
}

// observe records the outcome of ticket.
func (p *Publisher) observe(ctx context.Context, out Outbound, ticket *mqtt.Ticket) {
	if err := ticket.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.failed.Add(1)
		p.logger.Warn("outbound publish failed",
			"topic", out.Topic, "sequence", out.Sequence, "id", ticket.ID, "error", err)
		return
	}
	p.acknowledged.Add(1)
}

// LastSequence returns the most recently generated sequence number and
// false before the first message.
func (p *Publisher) LastSequence() (uint64, bool) {
	next := p.next.Load()
	if next == p.opts.StartSequence {
		return 0, false
	}
	return next - 1, true
}

// Stats returns a snapshot of the counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Generated:    p.generated.Load(),
		Accepted:     p.accepted.Load(),
		Rejected:     p.rejected.Load(),
		Acknowledged: p.acknowledged.Load(),
		Failed:       p.failed.Load(),
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
