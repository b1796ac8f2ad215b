// Package router dispatches inbound broker messages to handlers registered
// by exact topic name.
//
// Handlers run synchronously on the caller's goroutine. Work that may take
// long should be wrapped in an Offload so the inbound event loop keeps
// servicing the transport. A handler that returns an error or panics is
// reported and isolated; dispatch of later messages continues.
package router
