// Package router implements the dispatch core of the gateway.
//
// The Router:
//   - Assigns each inbound request to its user's sticky backend
//   - Queues requests FIFO per backend
//   - Runs one worker per backend that admits requests against the
//     sliding-window QPS budget
//   - Tracks per-backend counters and a bounded history of terminal requests
//
// Requests on different backends never contend: each backend owns its
// queue, its rate window, and its single worker.
package router
