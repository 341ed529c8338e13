package audit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/flowgate/flowgate/internal/router"
)

func rec(id string) router.Record {
	return router.Record{ID: id, UserID: "u1", State: "completed"}
}

func TestBuffer_SendReceive(t *testing.T) {
	b := NewBuffer(4)

	if !b.Send(rec("a")) {
		t.Fatal("Send on open buffer returned false")
	}
	got, ok := b.TryReceive()
	if !ok {
		t.Fatal("TryReceive returned no record")
	}
	if got.ID != "a" {
		t.Errorf("record ID = %q, want %q", got.ID, "a")
	}

	if _, ok := b.TryReceive(); ok {
		t.Error("TryReceive on empty buffer returned a record")
	}
}

func TestBuffer_FIFOOrder(t *testing.T) {
	b := NewBuffer(2)

	for i := 0; i < 50; i++ {
		b.Send(rec(fmt.Sprintf("r%03d", i)))
	}
	for i := 0; i < 50; i++ {
		got, ok := b.TryReceive()
		if !ok {
			t.Fatalf("record %d missing", i)
		}
		if want := fmt.Sprintf("r%03d", i); got.ID != want {
			t.Fatalf("record %d = %q, want %q (order broken across resize)", i, got.ID, want)
		}
	}
}

func TestBuffer_GrowsUnderLoad(t *testing.T) {
	b := NewBuffer(4)

	for i := 0; i < 100; i++ {
		if !b.Send(rec(fmt.Sprintf("r%d", i))) {
			t.Fatalf("Send %d failed", i)
		}
	}

	stats := b.Stats()
	if stats.Count != 100 {
		t.Errorf("Count = %d, want 100", stats.Count)
	}
	if stats.ResizeCount == 0 {
		t.Error("buffer never resized under load")
	}
	if stats.Capacity < 100 {
		t.Errorf("Capacity = %d, want >= 100", stats.Capacity)
	}
}

func TestBuffer_CloseDrains(t *testing.T) {
	b := NewBuffer(4)
	b.Send(rec("a"))
	b.Send(rec("b"))
	b.Close()

	if b.Send(rec("c")) {
		t.Error("Send after Close returned true")
	}

	// Remaining records are still drained.
	if got, ok := b.Receive(); !ok || got.ID != "a" {
		t.Errorf("first drained record = %v/%v, want a/true", got.ID, ok)
	}
	if got, ok := b.Receive(); !ok || got.ID != "b" {
		t.Errorf("second drained record = %v/%v, want b/true", got.ID, ok)
	}
	if _, ok := b.Receive(); ok {
		t.Error("Receive on closed empty buffer returned a record")
	}
}

func TestBuffer_ConcurrentSendReceive(t *testing.T) {
	b := NewBuffer(8)
	const n = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			b.Send(rec(fmt.Sprintf("r%d", i)))
		}
		b.Close()
	}()

	received := 0
	for {
		if _, ok := b.Receive(); !ok {
			break
		}
		received++
	}
	wg.Wait()

	if received != n {
		t.Errorf("received %d records, want %d", received, n)
	}
}
