// Package monitor keeps the most recent inbound messages for inspection.
//
// A Recorder sits in front of the router: every delivery is stored in a
// fixed-size RingBuffer and then dispatched unchanged. The API serves the
// buffer newest first, optionally filtered by topic, gateway, content or
// receipt time.
package monitor
