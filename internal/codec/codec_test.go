package codec

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHealthPayloadMarksAbsentFieldsMissing(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind("UWB/GW17F5_Health", KindStatus))

	msg, err := c.Decode("UWB/GW17F5_Health", []byte(`{"content":"health","gateway id":137205,"id":"E005"}`))
	require.NoError(t, err)

	status, ok := msg.(*StatusRecord)
	require.True(t, ok, "expected *StatusRecord, got %T", msg)

	gw, ok := status.GatewayID.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(137205), gw)

	id, ok := status.ID.Get()
	require.True(t, ok)
	assert.Equal(t, "E005", id.String())
	assert.False(t, id.IsNumeric())

	assert.True(t, status.Node.IsMissing())
	assert.True(t, status.Name.IsMissing())
	assert.True(t, status.FirmwareUpdate.IsMissing())
	assert.True(t, status.LED.IsMissing())
	assert.True(t, status.BLE.IsMissing())
	assert.True(t, status.Initiator.IsMissing())
	assert.True(t, status.Position.IsMissing())
	assert.True(t, status.SerialNo.IsMissing())
	assert.Nil(t, status.Extra)
}

func TestDecodeDistinguishesZeroFromMissing(t *testing.T) {
	f, err := DecodeFields([]byte(`{"led":0,"serial no":0}`))
	require.NoError(t, err)

	led, ok := f.LED.Get()
	assert.True(t, ok)
	assert.False(t, led)

	serial, ok := f.SerialNo.Get()
	assert.True(t, ok)
	assert.Zero(t, serial)

	assert.True(t, f.BLE.IsMissing())
}

func TestDecodeNullIsMissing(t *testing.T) {
	f, err := DecodeFields([]byte(`{"name":null,"position":null,"vendor":null}`))
	require.NoError(t, err)

	assert.True(t, f.Name.IsMissing())
	assert.True(t, f.Position.IsMissing())
	assert.Equal(t, json.RawMessage(`null`), f.Extra["vendor"])
}

func TestDecodeAnchorConfigFromDownlink(t *testing.T) {
	payload := []byte(`{
		"content": "configChange",
		"gateway id": 4192540344,
		"node": "ANCHOR",
		"name": "0x8E97",
		"id": 36503,
		"fw update": 0,
		"led": 1,
		"ble": 1,
		"initiator": 0,
		"position": {"x": 1.24, "y": 1.24, "z": 1.24},
		"serial no": 1240
	}`)

	msg, err := New().Decode("UWB/GW16B8_Dwlink", payload)
	require.NoError(t, err)

	anchor, ok := msg.(*AnchorConfig)
	require.True(t, ok, "unbound configChange/ANCHOR should infer AnchorConfig, got %T", msg)

	assert.Equal(t, Some(uint64(4192540344)), anchor.GatewayID)
	assert.Equal(t, Some(NodeAnchor), anchor.Node)
	assert.Equal(t, Some(NumericID(36503)), anchor.ID)
	assert.Equal(t, Some(false), anchor.FirmwareUpdate)
	assert.Equal(t, Some(true), anchor.LED)
	assert.Equal(t, Some(Position{X: 1.24, Y: 1.24, Z: 1.24}), anchor.Position)
	assert.Equal(t, Some(uint64(1240)), anchor.SerialNo)
}

func TestDecodeKindSelection(t *testing.T) {
	c := New()
	require.NoError(t, c.Bind("UWB/GW16B8_TagConf", KindTagConfig))

	tests := []struct {
		name    string
		topic   string
		payload string
		want    Kind
	}{
		{"bound topic wins", "UWB/GW16B8_TagConf", `{"content":"info"}`, KindTagConfig},
		{"config change for tag", "other", `{"content":"configChange","node":"TAG"}`, KindTagConfig},
		{"config change for anchor", "other", `{"content":"configChange","node":"anchor"}`, KindAnchorConfig},
		{"config change without node", "other", `{"content":"configChange"}`, KindStatus},
		{"location", "other", `{"content":"location","node":"TAG"}`, KindStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := c.Decode(tt.topic, []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Kind())
		})
	}
}

func TestDecodePreservesUnknownFields(t *testing.T) {
	payload := []byte(`{"content":"temperature","gateway id":137205,"temperature":{"value":37.2, "unit":"celsius","is_abnormal":false},"time":"2025-01-01T10:00:00.000"}`)

	msg, err := New().Decode("GW17F5_Health", payload)
	require.NoError(t, err)

	extra := msg.Common().Extra
	require.Len(t, extra, 2)
	assert.JSONEq(t, `{"value":37.2,"unit":"celsius","is_abnormal":false}`, string(extra["temperature"]))
	assert.Equal(t, json.RawMessage(`"2025-01-01T10:00:00.000"`), extra["time"])

	encoded, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(encoded))
}

func TestDecodePositionKeepsExtraKeys(t *testing.T) {
	f, err := DecodeFields([]byte(`{"position":{"x":1,"y":2,"z":3,"quality":95}}`))
	require.NoError(t, err)

	p, ok := f.Position.Get()
	require.True(t, ok)
	assert.Equal(t, 1.0, p.X)
	assert.Equal(t, json.RawMessage(`95`), p.Extra["quality"])
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantField string
	}{
		{"empty", ``, ""},
		{"whitespace", "  \n", ""},
		{"array", `[1,2]`, ""},
		{"string", `"health"`, ""},
		{"truncated object", `{"content":"health"`, ""},
		{"missing value", `{"content":}`, "content"},
		{"trailing garbage", `{"content":"health"} x`, ""},
		{"two objects", `{}{}`, ""},
		{"gateway id string", `{"gateway id":"abc"}`, "gateway id"},
		{"negative serial", `{"serial no":-1}`, "serial no"},
		{"fractional id", `{"id":1.5}`, "id"},
		{"flag out of range", `{"led":2}`, "led"},
		{"unknown node", `{"node":"GATEWAY"}`, "node"},
		{"partial position", `{"position":{"x":1,"y":2}}`, "position"},
		{"string coordinate", `{"position":{"x":"1","y":2,"z":3}}`, "position"},
		{"content number", `{"content":7}`, "content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Decode("t", []byte(tt.payload))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))

			var merr *MalformedError
			require.True(t, errors.As(err, &merr))
			assert.Equal(t, []byte(tt.payload), merr.Raw)
			assert.GreaterOrEqual(t, merr.Offset, int64(0))
			assert.LessOrEqual(t, merr.Offset, int64(len(tt.payload)))
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, merr.Field)
			}
		})
	}
}

func TestDecodeRandomBytesNeverPanics(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 2000; i++ {
		buf := make([]byte, r.IntN(64))
		for j := range buf {
			buf[j] = byte(r.IntN(256))
		}
		assert.NotPanics(t, func() {
			_, err := DecodeFields(buf)
			if err != nil {
				assert.ErrorIs(t, err, ErrMalformed)
			}
		})
	}
}

func FuzzDecodeFields(f *testing.F) {
	f.Add([]byte(`{"content":"health","gateway id":137205,"id":"E005"}`))
	f.Add([]byte(`{"position":{"x":1,"y":2,"z":3}}`))
	f.Add([]byte(`{"led":`))
	f.Fuzz(func(t *testing.T, data []byte) {
		fields, err := DecodeFields(data)
		if err != nil {
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("decode error %v is not ErrMalformed", err)
			}
			return
		}
		encoded, err := EncodeFields(&fields)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		again, err := DecodeFields(encoded)
		if err != nil {
			t.Fatalf("decode of re-encoded payload: %v", err)
		}
		assert.Equal(t, fields, again)
	})
}

func TestRoundTripLaw(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 1240))
	names := []string{"0x8E97", "錢七", "gateway <one> & two", "", "a\"quoted\" name"}
	extras := []json.RawMessage{
		json.RawMessage(`{"value":37.2,"unit":"celsius","room_temp":24.5}`),
		json.RawMessage(`[1,2,3]`),
		json.RawMessage(`"2025-01-01T10:00:00.000"`),
		json.RawMessage(`null`),
		json.RawMessage(`true`),
	}

	for i := 0; i < 500; i++ {
		var f Fields
		if r.IntN(2) == 0 {
			f.Content = Some([]string{"configChange", "health", "location", "info"}[r.IntN(4)])
		}
		if r.IntN(2) == 0 {
			f.GatewayID = Some(r.Uint64())
		}
		if r.IntN(2) == 0 {
			f.Node = Some([]NodeKind{NodeAnchor, NodeTag}[r.IntN(2)])
		}
		if r.IntN(2) == 0 {
			f.Name = Some(names[r.IntN(len(names))])
		}
		switch r.IntN(3) {
		case 0:
			f.ID = Some(NumericID(r.Uint64N(1 << 40)))
		case 1:
			f.ID = Some(TextID(names[r.IntN(len(names))]))
		}
		for _, flag := range []*Optional[bool]{&f.FirmwareUpdate, &f.LED, &f.BLE, &f.Initiator} {
			if r.IntN(2) == 0 {
				*flag = Some(r.IntN(2) == 1)
			}
		}
		if r.IntN(2) == 0 {
			p := Position{X: r.NormFloat64() * 1000, Y: r.Float64(), Z: float64(r.IntN(100)) / 1000}
			if r.IntN(3) == 0 {
				p.Extra = map[string]json.RawMessage{"quality": json.RawMessage(`87`)}
			}
			f.Position = Some(p)
		}
		if r.IntN(2) == 0 {
			f.SerialNo = Some(r.Uint64())
		}
		if n := r.IntN(3); n > 0 {
			f.Extra = make(map[string]json.RawMessage)
			for j := 0; j < n; j++ {
				f.Extra[[]string{"time", "temperature", "fw_ver", "x y"}[r.IntN(4)]] = extras[r.IntN(len(extras))]
			}
		}

		kind := []Kind{KindAnchorConfig, KindTagConfig, KindStatus}[r.IntN(3)]
		msg, err := NewMessage(kind, f)
		require.NoError(t, err)

		c := New()
		require.NoError(t, c.Bind("t", kind))

		encoded, err := c.Encode(msg)
		require.NoError(t, err)

		decoded, err := c.Decode("t", encoded)
		require.NoError(t, err, "payload %s", encoded)
		require.Equal(t, msg, decoded, "payload %s", encoded)
	}
}

func TestEncodeFieldOrder(t *testing.T) {
	msg := &AnchorConfig{Fields: Fields{
		Content:        Some(ContentConfigChange),
		GatewayID:      Some(uint64(4192540344)),
		Node:           Some(NodeAnchor),
		Name:           Some("0x8E97"),
		ID:             Some(NumericID(36503)),
		FirmwareUpdate: Some(false),
		LED:            Some(true),
		BLE:            Some(true),
		Initiator:      Some(false),
		Position:       Some(Position{X: 1.24, Y: 1.24, Z: 1.24}),
		SerialNo:       Some(uint64(1240)),
		Extra:          map[string]json.RawMessage{"b": json.RawMessage(`2`), "a": json.RawMessage(`1`), "name": json.RawMessage(`"shadow"`)},
	}}

	got, err := Encode(msg)
	require.NoError(t, err)

	want := `{"content":"configChange","gateway id":4192540344,"node":"ANCHOR","name":"0x8E97","id":36503,` +
		`"fw update":0,"led":1,"ble":1,"initiator":0,"position":{"x":1.24,"y":1.24,"z":1.24},"serial no":1240,"a":1,"b":2}`
	assert.Equal(t, want, string(got))
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrEncodeFailed)

	nan := &StatusRecord{Fields: Fields{Position: Some(Position{X: math.NaN()})}}
	_, err = Encode(nan)
	assert.ErrorIs(t, err, ErrEncodeFailed)

	bad := &StatusRecord{Fields: Fields{Extra: map[string]json.RawMessage{"x": json.RawMessage(`{`)}}}
	_, err = Encode(bad)
	assert.ErrorIs(t, err, ErrEncodeFailed)
}

func TestRoundTripKindDependsOnBinding(t *testing.T) {
	tag := &TagConfig{Fields: Fields{
		Content: Some("info"),
		ID:      Some(TextID("E005")),
	}}
	data, err := Encode(tag)
	require.NoError(t, err)

	c := New()
	unbound, err := c.Decode("UWB/GW16B8_Message", data)
	require.NoError(t, err)
	assert.Equal(t, KindStatus, unbound.Kind(), "unbound topics infer the kind from the payload")
	assert.Equal(t, tag.Fields, *unbound.Common())

	require.NoError(t, c.Bind("UWB/GW16B8_TagConf", KindTagConfig))
	bound, err := c.Decode("UWB/GW16B8_TagConf", data)
	require.NoError(t, err)
	assert.Equal(t, tag, bound)
}

func TestPeekContent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		ok      bool
	}{
		{"present", `{"gateway id":7,"content":"location","pos":{"x":1}}`, "location", true},
		{"absent", `{"gateway id":7}`, "", false},
		{"not a string", `{"content":3}`, "", false},
		{"malformed", `{"content":`, "", false},
		{"array", `["content"]`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PeekContent([]byte(tt.payload))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBindRejectsUnknownKind(t *testing.T) {
	err := New().Bind("t", KindUnknown)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Anchor_Config")
	require.NoError(t, err)
	assert.Equal(t, KindAnchorConfig, k)

	_, err = ParseKind("location")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestOptionalString(t *testing.T) {
	assert.Equal(t, "missing", Missing[int]().String())
	assert.Equal(t, "5", Some(5).String())
	assert.Equal(t, 3, Missing[int]().OrElse(3))
}
