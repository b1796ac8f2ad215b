package mqtt

import (
	"context"
	"time"
)

// Token is the completion handle of an asynchronous transport operation.
// pahomqtt.Token satisfies it.
type Token interface {
	Done() <-chan struct{}
	Error() error
}

// TransportHandlers receive events from the transport. Both are called from
// the transport's own goroutine.
type TransportHandlers struct {
	// OnMessage is called for every delivery, in the order received.
	OnMessage func(topic string, payload []byte)

	// OnConnectionLost is called when an established connection drops
	// without a Disconnect call.
	OnConnectionLost func(err error)
}

// Transport is the broker connection the Supervisor drives. It must not
// reconnect on its own; the Supervisor owns reconnection.
type Transport interface {
	// Connect performs one connection attempt, including TLS and
	// credential exchange. It returns when the broker accepted or
	// refused the session, or ctx is done.
	Connect(ctx context.Context, h TransportHandlers) error
	Subscribe(topic string, qos byte) Token
	Unsubscribe(topic string) Token
	Publish(topic string, qos byte, retained bool, payload []byte) Token
	// Disconnect closes the session cleanly, waiting up to quiesce for
	// in-flight work.
	Disconnect(quiesce time.Duration)
}

// waitToken waits for tok, bounded by ctx and timeout.
func waitToken(ctx context.Context, tok Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
