// Package affinity implements the sticky user-to-backend table.
//
// The table:
//   - Binds each user id to one backend on first contact
//   - Keeps the binding for the process lifetime (no eviction, no TTL)
//   - Guarantees exactly one binding per user under concurrent first requests
package affinity

import (
	"log/slog"
	"sync"
)

// LoadFunc reports the current load metric for a backend. The table picks
// the backend with the smallest value when binding a new user.
type LoadFunc func(backend int) float64

// Table maps user ids to backend indices, sticky for the process lifetime.
type Table struct {
	backends int
	load     LoadFunc
	logger   *slog.Logger

	mu       sync.RWMutex
	bindings map[string]int
	perBack  []int // number of users bound to each backend
}

// NewTable creates an affinity table over a fixed number of backends.
// load supplies the metric used to place new users; ties break to the
// lowest backend index.
func NewTable(backends int, load LoadFunc, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		backends: backends,
		load:     load,
		logger:   logger,
		bindings: make(map[string]int),
		perBack:  make([]int, backends),
	}
}

// AssignOrGet returns the backend bound to userID, binding it first if this
// is the user's first request. The check-then-insert is a single critical
// section so concurrent first requests from the same user resolve to exactly
// one winning assignment. The second return reports whether a new binding
// was created by this call.
func (t *Table) AssignOrGet(userID string) (int, bool) {
	t.mu.RLock()
	backend, ok := t.bindings[userID]
	t.mu.RUnlock()
	if ok {
		return backend, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Re-check under the write lock: another caller may have won the race.
	if backend, ok := t.bindings[userID]; ok {
		return backend, false
	}

	backend = t.pickLeastLoaded()
	t.bindings[userID] = backend
	t.perBack[backend]++

	t.logger.Debug("bound user to backend",
		"user", userID,
		"backend", backend,
	)
	return backend, true
}

// Get returns the existing binding for userID, if any.
func (t *Table) Get(userID string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	backend, ok := t.bindings[userID]
	return backend, ok
}

// Users returns the number of distinct users currently bound to backend.
func (t *Table) Users(backend int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if backend < 0 || backend >= len(t.perBack) {
		return 0
	}
	return t.perBack[backend]
}

// Total returns the number of distinct users seen by the process.
func (t *Table) Total() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bindings)
}

// pickLeastLoaded returns the backend with the smallest load metric,
// breaking ties by lowest index. Caller must hold t.mu.
func (t *Table) pickLeastLoaded() int {
	best := 0
	bestLoad := t.load(0)
	for b := 1; b < t.backends; b++ {
		if l := t.load(b); l < bestLoad {
			best, bestLoad = b, l
		}
	}
	return best
}
