package session

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the connection state of the single broker session.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// transitions lists the legal edges. Disconnected is also reachable from
// every state through Terminate.
var transitions = map[Status][]Status{
	StatusDisconnected: {StatusConnecting},
	StatusConnecting:   {StatusConnected, StatusReconnecting},
	StatusConnected:    {StatusReconnecting},
	StatusReconnecting: {StatusConnecting},
}

// Subscription is a topic the session should hold on the broker.
type Subscription struct {
	Topic string `json:"topic"`
	QoS   byte   `json:"qos"`
}

// Stats are counters kept for the lifetime of the process.
type Stats struct {
	TotalMessages         uint64    `json:"total_messages"`
	LastMessageAt         time.Time `json:"last_message_at,omitzero"`
	ConnectionAttempts    uint64    `json:"connection_attempts"`
	SuccessfulConnections uint64    `json:"successful_connections"`
	Disconnects           uint64    `json:"disconnects"`
}

// Snapshot is a consistent copy of the session taken under one lock.
type Snapshot struct {
	Status         Status         `json:"-"`
	StatusName     string         `json:"status"`
	Terminated     bool           `json:"terminated"`
	Subscriptions  []Subscription `json:"subscriptions"`
	LastSequence   uint64         `json:"last_sequence"`
	HasSequence    bool           `json:"has_sequence"`
	LastAckID      uint64         `json:"last_ack_id"`
	HasAck         bool           `json:"has_ack"`
	ConnectedSince time.Time      `json:"connected_since,omitzero"`
	LastError      string         `json:"last_error,omitempty"`
	Stats          Stats          `json:"stats"`
}

// Reader is the read-only view handed to the router, the publisher and the
// API. None of its methods mutate the session.
type Reader interface {
	Status() Status
	IsConnected() bool
	Subscriptions() []Subscription
	LastSequence() (uint64, bool)
	LastAck() (uint64, bool)
	Snapshot() Snapshot
}

// State is the mutable session record.
//
// Thread Safety: all methods are safe for concurrent use. Only the
// supervisor calls the mutating methods.
type State struct {
	mu sync.RWMutex

	status     Status
	terminated bool
	subs       map[string]byte

	lastSeq uint64
	hasSeq  bool
	lastAck uint64
	hasAck  bool

	connectedSince time.Time
	lastErr        error
	stats          Stats

	now func() time.Time
}

var _ Reader = (*State)(nil)

// New returns a Disconnected session with no subscriptions.
func New() *State {
	return &State{
		status: StatusDisconnected,
		subs:   make(map[string]byte),
		now:    time.Now,
	}
}

// Transition moves the session to the given status.
//
// Entering Connecting counts a connection attempt, entering Connected counts
// a successful connection and leaving Connected counts a disconnect.
func (s *State) Transition(to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return fmt.Errorf("%w: cannot enter %s", ErrTerminated, to)
	}
	if !allowed(s.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.status, to)
	}

	if s.status == StatusConnected {
		s.stats.Disconnects++
		s.connectedSince = time.Time{}
	}

	switch to {
	case StatusConnecting:
		s.stats.ConnectionAttempts++
	case StatusConnected:
		s.stats.SuccessfulConnections++
		s.connectedSince = s.now()
		s.lastErr = nil
	}

	s.status = to
	return nil
}

func allowed(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminate moves the session to Disconnected permanently. It is the only
// way to reach the terminal state and is idempotent.
func (s *State) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return
	}
	if s.status == StatusConnected {
		s.stats.Disconnects++
	}
	s.status = StatusDisconnected
	s.connectedSince = time.Time{}
	s.terminated = true
}

// AddSubscription records topic. Re-adding a topic updates its QoS.
func (s *State) AddSubscription(topic string, qos byte) {
	s.mu.Lock()
	s.subs[topic] = qos
	s.mu.Unlock()
}

// RemoveSubscription forgets topic.
func (s *State) RemoveSubscription(topic string) {
	s.mu.Lock()
	delete(s.subs, topic)
	s.mu.Unlock()
}

// RecordSequence notes the highest sequence number handed to the transport.
func (s *State) RecordSequence(seq uint64) {
	s.mu.Lock()
	if !s.hasSeq || seq > s.lastSeq {
		s.lastSeq = seq
		s.hasSeq = true
	}
	s.mu.Unlock()
}

// RecordAck notes a broker-confirmed publish id.
func (s *State) RecordAck(id uint64) {
	s.mu.Lock()
	if !s.hasAck || id > s.lastAck {
		s.lastAck = id
		s.hasAck = true
	}
	s.mu.Unlock()
}

// RecordInbound counts one delivered message.
func (s *State) RecordInbound(at time.Time) {
	s.mu.Lock()
	s.stats.TotalMessages++
	if at.After(s.stats.LastMessageAt) {
		s.stats.LastMessageAt = at
	}
	s.mu.Unlock()
}

// RecordError keeps the most recent transport error for diagnostics.
func (s *State) RecordError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *State) IsConnected() bool {
	return s.Status() == StatusConnected
}

// Terminated reports whether Terminate has been called.
func (s *State) Terminated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminated
}

// Subscriptions returns the recorded topics sorted by name.
func (s *State) Subscriptions() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscriptionsLocked()
}

func (s *State) subscriptionsLocked() []Subscription {
	out := make([]Subscription, 0, len(s.subs))
	for topic, qos := range s.subs {
		out = append(out, Subscription{Topic: topic, QoS: qos})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

func (s *State) LastSequence() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq, s.hasSeq
}

func (s *State) LastAck() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAck, s.hasAck
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Status:         s.status,
		StatusName:     s.status.String(),
		Terminated:     s.terminated,
		Subscriptions:  s.subscriptionsLocked(),
		LastSequence:   s.lastSeq,
		HasSequence:    s.hasSeq,
		LastAckID:      s.lastAck,
		HasAck:         s.hasAck,
		ConnectedSince: s.connectedSince,
		Stats:          s.stats,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}
