// Package audit implements the optional request audit trail.
//
// The audit trail:
//   - Buffers terminal request records in a growable in-memory ring
//   - Batch-inserts them into the request_log table
//   - Is entirely observational and disabled unless a database is configured
//
// Router state is never persisted; the gateway always restarts empty. The
// audit trail is an append-only log of finished requests, nothing reads it
// back at runtime.
package audit
