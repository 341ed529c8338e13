// Package status implements the periodic status reporter.
//
// The Reporter:
//   - Snapshots router state on a fixed interval
//   - Logs per-backend QPS, queue depth, and bound users
//   - Pushes the same snapshot to live WebSocket subscribers
//
// It is purely observational: snapshots are read-only and never touch
// request-handling locks beyond the router's brief read-locked reads.
package status
