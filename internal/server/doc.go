// Package server implements the inbound HTTP boundary.
//
// The server:
//   - Rejects requests without a user-identifying header before any
//     queueing occurs
//   - Serves /route (accept-and-queue) and /chat/completions (proxy)
//   - Maps error categories to status codes at this boundary only:
//     client input 400, backend unavailable 502, internal 500
//
// The admin handler serves /healthz, /status, /status/requests, and the
// /status/ws live feed on a separate port.
package server
