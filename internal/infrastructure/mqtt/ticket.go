package mqtt

import (
	"context"
	"sync"
	"time"
)

// TicketStatus is the state of a publish request.
type TicketStatus int

const (
	// TicketPending means the request is queued or awaiting broker confirmation.
	TicketPending TicketStatus = iota
	// TicketAcknowledged means the broker confirmed the publish.
	TicketAcknowledged
	// TicketFailed means the publish will not be confirmed; Err holds the reason.
	TicketFailed
)

func (s TicketStatus) String() string {
	switch s {
	case TicketPending:
		return "pending"
	case TicketAcknowledged:
		return "acknowledged"
	case TicketFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ticket tracks one accepted publish request until the transport confirms
// or fails it. Callers may block on Wait or poll Status.
type Ticket struct {
	// ID is the supervisor-assigned publish id, increasing per accepted request.
	ID uint64
	// Request is the publish as submitted.
	Request PublishRequest
	// AcceptedAt is when the supervisor accepted the request.
	AcceptedAt time.Time

	done chan struct{}
	once sync.Once

	mu     sync.RWMutex
	status TicketStatus
	err    error
}

func newTicket(id uint64, req PublishRequest, at time.Time) *Ticket {
	return &Ticket{
		ID:         id,
		Request:    req,
		AcceptedAt: at,
		done:       make(chan struct{}),
	}
}

// Done is closed once the ticket is resolved.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Status returns the current status and, for failed tickets, the reason.
func (t *Ticket) Status() (TicketStatus, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status, t.err
}

// Wait blocks until the ticket resolves or ctx is done. It returns nil for
// an acknowledged publish and the failure reason otherwise.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		_, err := t.Status()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Ticket) acknowledge() {
	t.resolve(TicketAcknowledged, nil)
}

func (t *Ticket) fail(err error) {
	t.resolve(TicketFailed, err)
}

// resolve sets the outcome once; later calls are ignored.
func (t *Ticket) resolve(status TicketStatus, err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.status = status
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}
