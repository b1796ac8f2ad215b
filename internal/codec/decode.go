package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
)

// PeekContent returns the "content" tag of a JSON object payload without
// decoding the other fields. It reports false when the payload is not an
// object or the tag is absent or not a string.
func PeekContent(data []byte) (string, bool) {
	var head struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Content == nil {
		return "", false
	}
	return *head.Content, true
}

// DecodeFields parses a payload into schema fields without choosing a kind.
func DecodeFields(data []byte) (Fields, error) {
	var f Fields

	if len(bytes.TrimSpace(data)) == 0 {
		return f, malformed(data, 0, "", errEmptyPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return f, malformed(data, errorOffset(err, dec), "", unexpectedEOF(err))
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return f, malformed(data, 0, "", errNotObject)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return f, malformed(data, errorOffset(err, dec), "", unexpectedEOF(err))
		}
		key, _ := keyTok.(string)
		valueOffset := dec.InputOffset()

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return f, malformed(data, errorOffset(err, dec), key, unexpectedEOF(err))
		}
		if err := f.set(key, raw); err != nil {
			return f, malformed(data, valueOffset, key, err)
		}
	}

	// Closing brace.
	if _, err := dec.Token(); err != nil {
		return f, malformed(data, errorOffset(err, dec), "", unexpectedEOF(err))
	}

	if tok, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil && tok != nil {
			err = errTrailingData
		}
		return f, malformed(data, errorOffset(err, dec), "", err)
	}

	return f, nil
}

// errorOffset extracts the byte offset from a json error, falling back to
// the decoder position.
func errorOffset(err error, dec *json.Decoder) int64 {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return syntaxErr.Offset
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Offset
	}
	return dec.InputOffset()
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// set assigns one top-level key. Null on a schema key means missing.
func (f *Fields) set(key string, raw json.RawMessage) error {
	isNull := bytes.Equal(raw, []byte("null"))

	if !isKnownKey(key) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return err
		}
		if f.Extra == nil {
			f.Extra = make(map[string]json.RawMessage)
		}
		f.Extra[key] = buf.Bytes()
		return nil
	}

	if isNull {
		return nil
	}

	switch key {
	case keyContent:
		s, err := decodeString(raw)
		if err != nil {
			return err
		}
		f.Content = Some(s)
	case keyGatewayID:
		n, err := decodeUint(raw)
		if err != nil {
			return err
		}
		f.GatewayID = Some(n)
	case keyNode:
		s, err := decodeString(raw)
		if err != nil {
			return err
		}
		node := NodeKind(strings.ToUpper(s))
		if node != NodeAnchor && node != NodeTag {
			return errNodeKind
		}
		f.Node = Some(node)
	case keyName:
		s, err := decodeString(raw)
		if err != nil {
			return err
		}
		f.Name = Some(s)
	case keyID:
		id, err := decodeDeviceID(raw)
		if err != nil {
			return err
		}
		f.ID = Some(id)
	case keyFirmwareUpdate:
		return setFlag(&f.FirmwareUpdate, raw)
	case keyLED:
		return setFlag(&f.LED, raw)
	case keyBLE:
		return setFlag(&f.BLE, raw)
	case keyInitiator:
		return setFlag(&f.Initiator, raw)
	case keyPosition:
		p, err := decodePosition(raw)
		if err != nil {
			return err
		}
		f.Position = Some(p)
	case keySerialNo:
		n, err := decodeUint(raw)
		if err != nil {
			return err
		}
		f.SerialNo = Some(n)
	}
	return nil
}

func decodeString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", errNotString
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func decodeUint(raw json.RawMessage) (uint64, error) {
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, errNotUint
	}
	return n, nil
}

func decodeFloat(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || raw[0] == '"' {
		return 0, errNotNumber
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, errNotNumber
	}
	return v, nil
}

func setFlag(dst *Optional[bool], raw json.RawMessage) error {
	switch string(raw) {
	case "0", "false":
		*dst = Some(false)
	case "1", "true":
		*dst = Some(true)
	default:
		return errNotFlag
	}
	return nil
}

func decodeDeviceID(raw json.RawMessage) (DeviceID, error) {
	if len(raw) > 0 && raw[0] == '"' {
		s, err := decodeString(raw)
		if err != nil {
			return DeviceID{}, err
		}
		return TextID(s), nil
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return DeviceID{}, errDeviceID
	}
	return NumericID(n), nil
}

func decodePosition(raw json.RawMessage) (Position, error) {
	var p Position
	if len(raw) == 0 || raw[0] != '{' {
		return p, errPosition
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return p, errPosition
	}

	coords := map[string]*float64{"x": &p.X, "y": &p.Y, "z": &p.Z}
	for axis, dst := range coords {
		v, ok := obj[axis]
		if !ok {
			return p, errPosition
		}
		f, err := decodeFloat(v)
		if err != nil {
			return p, errPosition
		}
		*dst = f
		delete(obj, axis)
	}

	for k, v := range obj {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return p, err
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = buf.Bytes()
	}

	return p, nil
}
