package router

import (
	"net/http"
	"sync"
	"time"
)

// State is the lifecycle state of a queued request.
type State int

const (
	StateQueued State = iota
	StateAdmitted
	StateForwarding
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateAdmitted:
		return "admitted"
	case StateForwarding:
		return "forwarding"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports whether the state is final.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// QueuedRequest is one request moving through the dispatch pipeline.
// Header and Body are copies; the inbound connection's buffers are never
// referenced after Submit returns.
type QueuedRequest struct {
	ID      string
	UserID  string
	Backend int
	Arrival time.Time
	Method  string
	Path    string
	Header  http.Header
	Body    []byte

	// detached requests are forwarded by the worker itself; attached
	// requests are forwarded by the caller once grant is closed.
	detached bool
	grant    chan struct{}

	mu    sync.Mutex
	state State
}

// State returns the current lifecycle state.
func (q *QueuedRequest) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// transition moves the request from one state to another. It returns false
// if the request is not in the expected state; terminal states are never
// left.
func (q *QueuedRequest) transition(from, to State) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != from || q.state.terminal() {
		return false
	}
	q.state = to
	return true
}
