// Package mqtttest provides an in-memory mqtt.Transport for tests.
package mqtttest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fnk59456/uwb-bridge/internal/infrastructure/mqtt"
)

var (
	// ErrNotConnected is returned by operations on a closed fake connection.
	ErrNotConnected = errors.New("mqtttest: not connected")

	// ErrConnecting is returned by Connect while an abandoned attempt is
	// still handshaking.
	ErrConnecting = errors.New("mqtttest: connection attempt in progress")
)

// Token is a controllable mqtt.Token.
type Token struct {
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

// NewToken returns a pending token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// CompletedToken returns a token already resolved with err.
func CompletedToken(err error) *Token {
	t := NewToken()
	t.Complete(err)
	return t
}

// Complete resolves the token. Later calls are ignored.
func (t *Token) Complete(err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *Token) Done() <-chan struct{} { return t.done }

func (t *Token) Error() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Published is one message handed to the fake.
type Published struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retained   bool
	Connection int
}

// Transport records every call and lets tests inject connection events.
type Transport struct {
	mu          sync.Mutex
	handlers    mqtt.TransportHandlers
	connected   bool
	connects    int
	successes   int
	disconnects int
	failures    []error
	holdAcks    bool
	pending     []*Token
	subscribes  map[int][]string
	published   []Published
	connectedCh chan struct{}

	// Held connects model a broker slow to answer. A held attempt whose
	// caller gave up keeps handshaking, like paho, until Disconnect.
	holdConnects bool
	release      chan struct{}
	waiting      int
	handshaking  bool
}

var _ mqtt.Transport = (*Transport)(nil)

// New returns a fake that accepts every connection attempt.
func New() *Transport {
	return &Transport{
		subscribes:  make(map[int][]string),
		connectedCh: make(chan struct{}, 64),
		release:     make(chan struct{}),
	}
}

// HoldConnects makes later Connect calls wait for ReleaseConnects.
func (t *Transport) HoldConnects(hold bool) {
	t.mu.Lock()
	t.holdConnects = hold
	t.mu.Unlock()
}

// ReleaseConnects lets every held attempt finish. An attempt abandoned by
// its caller and not aborted by Disconnect becomes an open session.
func (t *Transport) ReleaseConnects() {
	t.mu.Lock()
	close(t.release)
	t.release = make(chan struct{})
	if t.handshaking {
		t.handshaking = false
		t.connected = true
	}
	t.mu.Unlock()
}

// ConnectsWaiting returns the number of Connect calls currently held.
func (t *Transport) ConnectsWaiting() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waiting
}

// Open reports whether the fake holds a live session.
func (t *Transport) Open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// FailNextConnects makes the next len(errs) attempts fail with errs in order.
func (t *Transport) FailNextConnects(errs ...error) {
	t.mu.Lock()
	t.failures = append(t.failures, errs...)
	t.mu.Unlock()
}

// HoldAcks keeps publish tokens pending until ReleaseAcks.
func (t *Transport) HoldAcks(hold bool) {
	t.mu.Lock()
	t.holdAcks = hold
	t.mu.Unlock()
}

// ReleaseAcks completes every held publish token with err.
func (t *Transport) ReleaseAcks(err error) {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()
	for _, tok := range pending {
		tok.Complete(err)
	}
}

func (t *Transport) Connect(ctx context.Context, h mqtt.TransportHandlers) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	t.connects++
	if t.handshaking {
		t.mu.Unlock()
		return ErrConnecting
	}
	if t.holdConnects {
		release := t.release
		t.waiting++
		t.mu.Unlock()

		select {
		case <-release:
			t.mu.Lock()
			t.waiting--
		case <-ctx.Done():
			t.mu.Lock()
			t.waiting--
			t.handshaking = true
			t.mu.Unlock()
			return ctx.Err()
		}
	}
	if len(t.failures) > 0 {
		err := t.failures[0]
		t.failures = t.failures[1:]
		t.mu.Unlock()
		return err
	}
	t.handlers = h
	t.connected = true
	t.successes++
	t.mu.Unlock()

	select {
	case t.connectedCh <- struct{}{}:
	default:
	}
	return nil
}

func (t *Transport) Subscribe(topic string, _ byte) mqtt.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return CompletedToken(ErrNotConnected)
	}
	t.subscribes[t.successes] = append(t.subscribes[t.successes], topic)
	return CompletedToken(nil)
}

func (t *Transport) Unsubscribe(string) mqtt.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return CompletedToken(ErrNotConnected)
	}
	return CompletedToken(nil)
}

func (t *Transport) Publish(topic string, qos byte, retained bool, payload []byte) mqtt.Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return CompletedToken(ErrNotConnected)
	}
	t.published = append(t.published, Published{
		Topic:      topic,
		Payload:    append([]byte(nil), payload...),
		QoS:        qos,
		Retained:   retained,
		Connection: t.successes,
	})
	if t.holdAcks {
		tok := NewToken()
		t.pending = append(t.pending, tok)
		return tok
	}
	return CompletedToken(nil)
}

func (t *Transport) Disconnect(time.Duration) {
	t.mu.Lock()
	t.connected = false
	t.handshaking = false
	t.disconnects++
	t.mu.Unlock()
}

// DropConnection simulates an unsolicited disconnect.
func (t *Transport) DropConnection(err error) {
	t.mu.Lock()
	t.connected = false
	lost := t.handlers.OnConnectionLost
	t.mu.Unlock()
	if lost != nil {
		lost(err)
	}
}

// Deliver simulates an inbound message on the transport's goroutine.
func (t *Transport) Deliver(topic string, payload []byte) {
	t.mu.Lock()
	onMessage := t.handlers.OnMessage
	t.mu.Unlock()
	if onMessage != nil {
		onMessage(topic, payload)
	}
}

// WaitConnected blocks until another successful Connect or the timeout.
func (t *Transport) WaitConnected(timeout time.Duration) bool {
	select {
	case <-t.connectedCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Connects returns the number of connection attempts.
func (t *Transport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// Disconnects returns the number of Disconnect calls.
func (t *Transport) Disconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnects
}

// SubscribedOn returns the topics subscribed during the n-th successful
// connection, counting from 1.
func (t *Transport) SubscribedOn(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.subscribes[n]...)
}

// Published returns every publish, optionally limited to one topic.
func (t *Transport) Published(topic string) []Published {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Published
	for _, p := range t.published {
		if topic == "" || p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}
