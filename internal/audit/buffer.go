package audit

import (
	"sync"

	"github.com/flowgate/flowgate/internal/router"
)

// Buffer is a thread-safe ring of audit records that automatically doubles
// its capacity when it reaches 70% full. Enqueueing never blocks request
// handling; the writer drains it at its own pace.
type Buffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []router.Record
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalReceived int64
	totalSent     int64
	resizeCount   int
}

// BufferStats describes buffer usage.
type BufferStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	ResizeCount   int
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer(initialCapacity int) *Buffer {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &Buffer{
		buf:      make([]router.Record, initialCapacity),
		capacity: initialCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send adds a record to the buffer. Grows the buffer if at 70% capacity.
// Returns false if the buffer is closed.
func (b *Buffer) Send(rec router.Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = rec
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalReceived++

	b.cond.Signal()
	return true
}

// Receive removes and returns a record, blocking until one is available or
// the buffer is closed. Returns false once the buffer is closed and drained.
func (b *Buffer) Receive() (router.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 && b.closed {
		return router.Record{}, false
	}

	return b.takeLocked(), true
}

// TryReceive attempts to receive without blocking.
func (b *Buffer) TryReceive() (router.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return router.Record{}, false
	}
	return b.takeLocked(), true
}

// Close closes the buffer. After closing, Send returns false; receivers
// drain the remaining records and then get the closed signal.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// Stats returns buffer usage counters.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      b.capacity,
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		ResizeCount:   b.resizeCount,
	}
}

// takeLocked pops the head record. Caller must hold b.mu.
func (b *Buffer) takeLocked() router.Record {
	rec := b.buf[b.head]
	b.buf[b.head] = router.Record{} // clear reference for GC
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.totalSent++
	return rec
}

// grow doubles the buffer capacity, compacting entries to the front.
// Caller must hold b.mu.
func (b *Buffer) grow() {
	newCap := b.capacity * 2
	newBuf := make([]router.Record, newCap)

	for i := 0; i < b.count; i++ {
		newBuf[i] = b.buf[(b.head+i)%b.capacity]
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCap
	b.resizeCount++
}
