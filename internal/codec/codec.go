package codec

import (
	"fmt"
	"sync"
)

// Codec decodes payloads using per-topic schema bindings.
//
// Thread Safety: all methods are safe for concurrent use.
type Codec struct {
	mu       sync.RWMutex
	bindings map[string]Kind
}

// New returns a Codec with no bindings. Unbound topics fall back to InferKind.
func New() *Codec {
	return &Codec{
		bindings: make(map[string]Kind),
	}
}

// Bind ties a topic to a record kind. Rebinding replaces the previous kind.
func (c *Codec) Bind(topic string, kind Kind) error {
	if kind != KindAnchorConfig && kind != KindTagConfig && kind != KindStatus {
		return fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	c.mu.Lock()
	c.bindings[topic] = kind
	c.mu.Unlock()
	return nil
}

// KindFor returns the kind bound to topic.
func (c *Codec) KindFor(topic string) (Kind, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.bindings[topic]
	return k, ok
}

// Decode parses data received on topic. Errors are always *MalformedError.
//
// The record kind comes from the topic binding. On an unbound topic it is
// inferred from the payload (see InferKind), so a TagConfig or
// AnchorConfig without content "configChange" and a node tag decodes as a
// StatusRecord there. Decode(Encode(m)) == m holds on a topic bound to
// m's kind.
func (c *Codec) Decode(topic string, data []byte) (Message, error) {
	f, err := DecodeFields(data)
	if err != nil {
		return nil, err
	}

	kind, ok := c.KindFor(topic)
	if !ok {
		kind = InferKind(&f)
	}
	return NewMessage(kind, f)
}

// Encode serialises msg. It is the inverse of Decode for every field the
// schema defines plus the overflow keys.
func (c *Codec) Encode(msg Message) ([]byte, error) {
	return Encode(msg)
}

// Encode serialises msg without a Codec.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrEncodeFailed)
	}
	return EncodeFields(msg.Common())
}
