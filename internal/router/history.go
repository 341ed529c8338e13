package router

import "sync"

// history retains the most recent terminal request records, bounded by a
// fixed capacity. Oldest records are dropped first.
type history struct {
	mu    sync.Mutex
	buf   []Record
	head  int
	count int
}

func newHistory(capacity int) *history {
	if capacity < 1 {
		capacity = 1
	}
	return &history{buf: make([]Record, capacity)}
}

// add records one terminal request, evicting the oldest if full.
func (h *history) add(rec Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[(h.head+h.count)%len(h.buf)] = rec
	if h.count < len(h.buf) {
		h.count++
	} else {
		h.head = (h.head + 1) % len(h.buf)
	}
}

// recent returns the retained records, oldest first.
func (h *history) recent() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}
