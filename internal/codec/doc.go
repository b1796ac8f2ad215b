// Package codec translates between raw MQTT payloads and typed UWB records.
//
// Gateways publish flat JSON objects whose keys are fixed ASCII strings,
// some with embedded spaces ("gateway id", "fw update", "serial no"). The
// codec reads those keys literally and maps them onto one of three record
// kinds:
//
//   - AnchorConfig: anchor configuration (topic suffix _AncConf, downlink)
//   - TagConfig:    tag configuration (topic suffix _TagConf)
//   - StatusRecord: health, location, ack and other status traffic
//
// # Missing Fields
//
// Every schema field is an Optional. A key absent from the payload (or set
// to null) decodes as missing, never as a zero value, so "led": 0 and no
// "led" key are distinguishable.
//
// # Forward Compatibility
//
// Keys the schema does not define are kept verbatim in Fields.Extra and are
// written back by Encode. For every well-formed message m:
//
//	decode(encode(m)) == m
//
// # Errors
//
// Malformed input never panics. Decode returns a *MalformedError carrying
// the raw bytes, the byte offset of the problem, and the offending key when
// the failure is field-level:
//
//	msg, err := c.Decode(topic, payload)
//	if errors.Is(err, codec.ErrMalformed) {
//	    // log and drop
//	}
package codec
