package affinity

import (
	"fmt"
	"sync"
	"testing"
)

func constantLoad(float64) LoadFunc {
	return func(int) float64 { return 0 }
}

func TestAssignOrGet_Sticky(t *testing.T) {
	loads := []float64{2.0, 0.5, 1.0}
	table := NewTable(3, func(b int) float64 { return loads[b] }, nil)

	backend, assigned := table.AssignOrGet("u1")
	if !assigned {
		t.Fatal("first AssignOrGet should create a binding")
	}
	if backend != 1 {
		t.Errorf("backend = %d, want 1 (least loaded)", backend)
	}

	// Load changes must not move an existing binding.
	loads[1] = 100.0
	for i := 0; i < 10; i++ {
		got, assigned := table.AssignOrGet("u1")
		if assigned {
			t.Fatal("repeat AssignOrGet must not rebind")
		}
		if got != backend {
			t.Fatalf("binding moved from %d to %d", backend, got)
		}
	}
}

func TestAssignOrGet_TieBreaksLowestIndex(t *testing.T) {
	table := NewTable(4, func(int) float64 { return 1.0 }, nil)

	backend, _ := table.AssignOrGet("u1")
	if backend != 0 {
		t.Errorf("backend = %d, want 0 on tie", backend)
	}
}

func TestAssignOrGet_ExactlyOnceUnderConcurrency(t *testing.T) {
	table := NewTable(8, func(int) float64 { return 0 }, nil)

	const n = 64
	results := make([]int, n)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], _ = table.AssignOrGet("same-user")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("observed two bindings for one user: %d and %d", results[0], results[i])
		}
	}
	if table.Total() != 1 {
		t.Errorf("Total() = %d, want 1", table.Total())
	}
}

func TestUsersAndTotal(t *testing.T) {
	next := 0
	// Round-robin placement: report the lowest load for a rotating backend.
	table := NewTable(2, func(b int) float64 {
		if b == next%2 {
			return 0
		}
		return 1
	}, nil)

	for i := 0; i < 6; i++ {
		table.AssignOrGet(fmt.Sprintf("user-%d", i))
		next++
	}

	if got := table.Total(); got != 6 {
		t.Errorf("Total() = %d, want 6", got)
	}
	if table.Users(0)+table.Users(1) != 6 {
		t.Errorf("Users(0)+Users(1) = %d, want 6", table.Users(0)+table.Users(1))
	}
	if table.Users(0) == 0 || table.Users(1) == 0 {
		t.Errorf("expected users on both backends, got %d and %d", table.Users(0), table.Users(1))
	}
}

func TestGet_Unbound(t *testing.T) {
	table := NewTable(2, constantLoad(0), nil)
	if _, ok := table.Get("nobody"); ok {
		t.Error("Get should report no binding for an unseen user")
	}
}
