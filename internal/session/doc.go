// Package session holds the bridge's process-wide session record: connection
// status, subscribed topics, sequence and acknowledgement counters, and
// inbound statistics.
//
// The Connection Supervisor owns the only *State and is the sole writer.
// Every other component receives it as a Reader.
package session
