package outbound

import "github.com/fnk59456/uwb-bridge/internal/codec"

// Generator builds the record for one sequence number. Implementations
// must be pure: the same sequence yields the same record.
type Generator interface {
	Generate(seq uint64) codec.Message
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(seq uint64) codec.Message

// Generate calls f(seq).
func (f GeneratorFunc) Generate(seq uint64) codec.Message {
	return f(seq)
}

// AnchorGenerator produces anchor configChange records for one anchor.
// The position is x = y = z = seq/1000 and the serial number is seq.
type AnchorGenerator struct {
	GatewayID uint64
	Name      string
	ID        uint64
}

// Generate returns the anchor record for seq.
func (g AnchorGenerator) Generate(seq uint64) codec.Message {
	coord := float64(seq) / 1000

	return &codec.AnchorConfig{Fields: codec.Fields{
		Content:        codec.Some(codec.ContentConfigChange),
		GatewayID:      codec.Some(g.GatewayID),
		Node:           codec.Some(codec.NodeAnchor),
		Name:           codec.Some(g.Name),
		ID:             codec.Some(codec.NumericID(g.ID)),
		FirmwareUpdate: codec.Some(false),
		LED:            codec.Some(true),
		BLE:            codec.Some(true),
		Initiator:      codec.Some(false),
		Position:       codec.Some(codec.Position{X: coord, Y: coord, Z: coord}),
		SerialNo:       codec.Some(seq),
	}}
}
