package router

import "sync"

// dispatchQueue is one backend's FIFO of waiting requests. Requests are
// never reordered or skipped; only the owning worker pops.
type dispatchQueue struct {
	mu    sync.Mutex
	items []*QueuedRequest
}

// push appends a request to the back of the queue.
func (q *dispatchQueue) push(r *QueuedRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, r)
}

// peek returns the head of the queue without removing it, or nil.
func (q *dispatchQueue) peek() *QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// pop removes and returns the head of the queue, or nil.
func (q *dispatchQueue) pop() *QueuedRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return head
}

// depth returns the number of waiting requests.
func (q *dispatchQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
