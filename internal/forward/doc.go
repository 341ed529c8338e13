// Package forward performs outbound backend calls.
//
// The Forwarder:
//   - Supports buffered forwarding (wait for the complete backend response)
//   - Supports streaming forwarding (relay status, headers, and chunks as received)
//   - Strips hop-by-hop headers in both directions
//   - Wraps transport failures in BackendError with backend id, request id,
//     and elapsed time
package forward
