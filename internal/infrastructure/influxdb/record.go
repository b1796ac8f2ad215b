package influxdb

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/fnk59456/uwb-bridge/internal/codec"
)

// measurementPrefix is prepended to the record kind, e.g. uwb_status.
const measurementPrefix = "uwb_"

// WriteRecord stores one decoded record received on topic at the given time.
//
// Tags carry the topic, gateway id, node, device id and content; fields
// carry position, serial number, flags and name, plus numeric and boolean
// keys outside the schema such as health readings. Missing schema fields
// are omitted, never written as zero.
func (c *Client) WriteRecord(ctx context.Context, topic string, msg codec.Message, at time.Time) error {
	return c.WritePoints(ctx, RecordPoint(topic, msg, at))
}

// RecordPoint converts a decoded record to a point.
func RecordPoint(topic string, msg codec.Message, at time.Time) *write.Point {
	f := msg.Common()

	tags := map[string]string{"topic": topic}
	if v, ok := f.GatewayID.Get(); ok {
		tags["gateway_id"] = strconv.FormatUint(v, 10)
	}
	if v, ok := f.Node.Get(); ok {
		tags["node"] = string(v)
	}
	if v, ok := f.ID.Get(); ok {
		tags["device_id"] = v.String()
	}
	if v, ok := f.Content.Get(); ok {
		tags["content"] = v
	}

	fields := make(map[string]interface{})
	if v, ok := f.Name.Get(); ok {
		fields["name"] = v
	}
	if v, ok := f.SerialNo.Get(); ok {
		fields["serial_no"] = v
	}
	addFlag(fields, "fw_update", f.FirmwareUpdate)
	addFlag(fields, "led", f.LED)
	addFlag(fields, "ble", f.BLE)
	addFlag(fields, "initiator", f.Initiator)
	if pos, ok := f.Position.Get(); ok {
		fields["x"] = pos.X
		fields["y"] = pos.Y
		fields["z"] = pos.Z
		addExtra(fields, "position_", pos.Extra)
	}
	addExtra(fields, "", f.Extra)

	// InfluxDB rejects points without fields.
	if len(fields) == 0 {
		fields["received"] = true
	}

	return write.NewPoint(measurementPrefix+msg.Kind().String(), tags, fields, at)
}

// addExtra writes the numeric and boolean entries of extra as fields named
// prefix+key, with spaces in keys replaced by underscores. Other values
// and keys that would overwrite a schema field are skipped.
func addExtra(fields map[string]interface{}, prefix string, extra map[string]json.RawMessage) {
	for k, raw := range extra {
		key := prefix + strings.ReplaceAll(k, " ", "_")
		if _, taken := fields[key]; taken {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		switch v.(type) {
		case float64, bool:
			fields[key] = v
		}
	}
}

func addFlag(fields map[string]interface{}, key string, flag codec.Optional[bool]) {
	if v, ok := flag.Get(); ok {
		fields[key] = v
	}
}
