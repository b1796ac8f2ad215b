package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payload keys as published by the UWB gateways.
const (
	keyContent        = "content"
	keyGatewayID      = "gateway id"
	keyNode           = "node"
	keyName           = "name"
	keyID             = "id"
	keyFirmwareUpdate = "fw update"
	keyLED            = "led"
	keyBLE            = "ble"
	keyInitiator      = "initiator"
	keyPosition       = "position"
	keySerialNo       = "serial no"
)

// knownKeys lists schema keys in encoding order.
var knownKeys = []string{
	keyContent,
	keyGatewayID,
	keyNode,
	keyName,
	keyID,
	keyFirmwareUpdate,
	keyLED,
	keyBLE,
	keyInitiator,
	keyPosition,
	keySerialNo,
}

func isKnownKey(key string) bool {
	for _, k := range knownKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ContentConfigChange is the content tag gateways use for configuration records.
const ContentConfigChange = "configChange"

// Kind identifies which record variant a message is.
type Kind uint8

const (
	// KindUnknown is never produced by Decode; it marks an unset binding.
	KindUnknown Kind = iota
	KindAnchorConfig
	KindTagConfig
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindAnchorConfig:
		return "anchor_config"
	case KindTagConfig:
		return "tag_config"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// ParseKind converts a configuration schema name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anchor_config", "anchor":
		return KindAnchorConfig, nil
	case "tag_config", "tag":
		return KindTagConfig, nil
	case "status", "health":
		return KindStatus, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// NodeKind is the "node" tag of a record.
type NodeKind string

const (
	NodeAnchor NodeKind = "ANCHOR"
	NodeTag    NodeKind = "TAG"
)

// Position is a 3D coordinate. Keys other than x, y and z (for example the
// "quality" value on location reports) are kept in Extra.
type Position struct {
	X     float64
	Y     float64
	Z     float64
	Extra map[string]json.RawMessage
}

// DeviceID is the "id" field. Anchors report a number, tags report a string
// such as "E005"; the original representation is kept for re-encoding.
type DeviceID struct {
	text    string
	num     uint64
	numeric bool
}

// TextID returns a string device id.
func TextID(s string) DeviceID {
	return DeviceID{text: s}
}

// NumericID returns a numeric device id.
func NumericID(n uint64) DeviceID {
	return DeviceID{num: n, numeric: true}
}

// Number returns the numeric id and true when the id was numeric.
func (d DeviceID) Number() (uint64, bool) {
	return d.num, d.numeric
}

// IsNumeric reports whether the id was published as a number.
func (d DeviceID) IsNumeric() bool {
	return d.numeric
}

func (d DeviceID) String() string {
	if d.numeric {
		return strconv.FormatUint(d.num, 10)
	}
	return d.text
}

// Fields are the schema fields shared by all record kinds.
type Fields struct {
	Content        Optional[string]
	GatewayID      Optional[uint64]
	Node           Optional[NodeKind]
	Name           Optional[string]
	ID             Optional[DeviceID]
	FirmwareUpdate Optional[bool]
	LED            Optional[bool]
	BLE            Optional[bool]
	Initiator      Optional[bool]
	Position       Optional[Position]
	SerialNo       Optional[uint64]

	// Extra holds keys outside the schema, compacted, keyed by name.
	// It is nil when the payload had none.
	Extra map[string]json.RawMessage
}

// Message is the decoded union. Exactly one of *AnchorConfig, *TagConfig
// or *StatusRecord implements it for a given payload.
type Message interface {
	Kind() Kind
	Common() *Fields
	isMessage()
}

// AnchorConfig is an anchor configuration record.
type AnchorConfig struct {
	Fields
}

// TagConfig is a tag configuration record.
type TagConfig struct {
	Fields
}

// StatusRecord is a health/status record.
type StatusRecord struct {
	Fields
}

func (*AnchorConfig) Kind() Kind       { return KindAnchorConfig }
func (m *AnchorConfig) Common() *Fields { return &m.Fields }
func (*AnchorConfig) isMessage()       {}

func (*TagConfig) Kind() Kind       { return KindTagConfig }
func (m *TagConfig) Common() *Fields { return &m.Fields }
func (*TagConfig) isMessage()       {}

func (*StatusRecord) Kind() Kind       { return KindStatus }
func (m *StatusRecord) Common() *Fields { return &m.Fields }
func (*StatusRecord) isMessage()       {}

// NewMessage wraps fields in the variant for kind.
func NewMessage(kind Kind, f Fields) (Message, error) {
	switch kind {
	case KindAnchorConfig:
		return &AnchorConfig{Fields: f}, nil
	case KindTagConfig:
		return &TagConfig{Fields: f}, nil
	case KindStatus:
		return &StatusRecord{Fields: f}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

// InferKind picks a variant for a payload on an unbound topic.
// Configuration records carry content "configChange" and a node tag;
// everything else is status traffic.
func InferKind(f *Fields) Kind {
	content, _ := f.Content.Get()
	node, ok := f.Node.Get()
	if content != ContentConfigChange || !ok {
		return KindStatus
	}
	if node == NodeTag {
		return KindTagConfig
	}
	return KindAnchorConfig
}
