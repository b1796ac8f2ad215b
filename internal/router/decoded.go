package router

import "github.com/fnk59456/uwb-bridge/internal/codec"

// MessageHandler receives a decoded record alongside its delivery.
type MessageHandler func(msg InboundMessage, decoded codec.Message) error

// Decoded adapts a MessageHandler into a Handler. Payloads that fail to
// decode are returned as codec errors, which Dispatch logs and drops. A
// message that already carries a decoded record is not parsed again, and
// msg.Decoded is set before fn runs.
func Decoded(c *codec.Codec, fn MessageHandler) Handler {
	return func(msg InboundMessage) error {
		if msg.Decoded == nil {
			decoded, err := c.Decode(msg.Topic, msg.Payload)
			if err != nil {
				return err
			}
			msg.Decoded = decoded
		}
		return fn(msg, msg.Decoded)
	}
}
