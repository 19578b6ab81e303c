// Package api implements the HTTP REST API and WebSocket event stream of the
// QuickBars hub.
//
// This package provides:
//   - REST endpoints for paired devices, discovery candidates and pairing
//   - Service endpoints that dispatch quickbar_toggle, camera_toggle and notify
//   - A WebSocket hub relaying bus events to subscribed clients
//   - JWT bearer authentication with role permissions, and single-use
//     tickets for WebSocket connections
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Errors
//
// Domain errors map onto status codes: an unknown device is 404, invalid or
// mutually exclusive fields are 400 and an unreachable TV during pairing is
// 502. Dispatch results are reported per device in a 200 body, so a device
// whose channel is down shows up as an entry with delivered=false rather
// than as a failed request.
package api
