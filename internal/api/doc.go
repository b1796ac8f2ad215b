// Package api implements the HTTP status and trigger surface of the bridge.
//
// Endpoints, all under /api/v1:
//   - GET /health: broker session and telemetry sink health (200 or 503)
//   - GET /metrics: runtime, session, buffer and publisher counters
//   - GET /session: a snapshot of the broker session and queue length
//   - GET /messages: recent inbound messages, newest first, filtered by
//     topic, gateway, content and since
//   - GET /messages/latest: the newest message, optionally for one topic
//   - POST /publish: send {"count": n} generated records now; requires a
//     bearer token with the publish scope when api.auth.jwt_secret is set
//   - GET /stream: WebSocket feed of inbound messages as they arrive,
//     with the same filters as /messages
//
// # Graceful Degradation
//
// The server keeps answering while the broker is unreachable. Publishes are
// queued or rejected by the supervisor, and /health reports 503 until the
// session is connected again.
package api
