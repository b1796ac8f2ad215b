package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// EncodeFields serialises schema fields followed by overflow keys.
// Schema keys are written in a fixed order, overflow keys sorted by name.
// An overflow key that collides with a schema key is skipped.
func EncodeFields(f *Fields) ([]byte, error) {
	w := newObjectWriter()

	if v, ok := f.Content.Get(); ok {
		w.value(keyContent, v)
	}
	if v, ok := f.GatewayID.Get(); ok {
		w.value(keyGatewayID, v)
	}
	if v, ok := f.Node.Get(); ok {
		w.value(keyNode, string(v))
	}
	if v, ok := f.Name.Get(); ok {
		w.value(keyName, v)
	}
	if v, ok := f.ID.Get(); ok {
		if n, numeric := v.Number(); numeric {
			w.value(keyID, n)
		} else {
			w.value(keyID, v.String())
		}
	}
	writeFlag(w, keyFirmwareUpdate, f.FirmwareUpdate)
	writeFlag(w, keyLED, f.LED)
	writeFlag(w, keyBLE, f.BLE)
	writeFlag(w, keyInitiator, f.Initiator)
	if v, ok := f.Position.Get(); ok {
		raw, err := encodePosition(v)
		if err != nil {
			return nil, err
		}
		w.raw(keyPosition, raw)
	}
	if v, ok := f.SerialNo.Get(); ok {
		w.value(keySerialNo, v)
	}

	for _, k := range sortedKeys(f.Extra) {
		if isKnownKey(k) {
			continue
		}
		w.raw(k, f.Extra[k])
	}

	return w.finish()
}

func writeFlag(w *objectWriter, key string, flag Optional[bool]) {
	v, ok := flag.Get()
	if !ok {
		return
	}
	if v {
		w.value(key, 1)
	} else {
		w.value(key, 0)
	}
}

func encodePosition(p Position) (json.RawMessage, error) {
	w := newObjectWriter()
	w.value("x", p.X)
	w.value("y", p.Y)
	w.value("z", p.Z)
	for _, k := range sortedKeys(p.Extra) {
		if k == "x" || k == "y" || k == "z" {
			continue
		}
		w.raw(k, p.Extra[k])
	}
	return w.finish()
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// objectWriter builds a JSON object, keeping the first error.
type objectWriter struct {
	buf   bytes.Buffer
	count int
	err   error
}

func newObjectWriter() *objectWriter {
	w := &objectWriter{}
	w.buf.WriteByte('{')
	return w
}

func (w *objectWriter) key(k string) {
	if w.count > 0 {
		w.buf.WriteByte(',')
	}
	w.count++
	kb, _ := marshalNoEscape(k)
	w.buf.Write(kb)
	w.buf.WriteByte(':')
}

func (w *objectWriter) value(k string, v any) {
	if w.err != nil {
		return
	}
	b, err := marshalNoEscape(v)
	if err != nil {
		w.err = fmt.Errorf("%w: field %q: %w", ErrEncodeFailed, k, err)
		return
	}
	w.key(k)
	w.buf.Write(b)
}

func (w *objectWriter) raw(k string, v json.RawMessage) {
	if w.err != nil {
		return
	}
	if !json.Valid(v) {
		w.err = fmt.Errorf("%w: field %q holds invalid JSON", ErrEncodeFailed, k)
		return
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, v); err != nil {
		w.err = fmt.Errorf("%w: field %q: %w", ErrEncodeFailed, k, err)
		return
	}
	w.key(k)
	w.buf.Write(compact.Bytes())
}

func (w *objectWriter) finish() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}

// marshalNoEscape is json.Marshal without HTML escaping, so device names
// survive byte-for-byte.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
