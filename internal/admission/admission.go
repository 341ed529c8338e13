// Package admission implements the per-backend sliding-window QPS gate.
//
// The controller:
//   - Keeps one chronological record of admission timestamps per backend
//   - Estimates current QPS by scanning the record tail-first
//   - Prunes stale entries lazily, at estimation time only
//   - Admits a request iff the estimate is below the backend's QPS budget
package admission

import (
	"sync"
	"time"
)

// Controller gates request admission per backend. Each backend has its own
// lock, so admission decisions on different backends never contend.
type Controller struct {
	window  time.Duration
	targets []float64

	mu      []sync.Mutex
	records [][]time.Time
}

// NewController creates a controller for len(targets) backends. targets[b]
// is the QPS budget for backend b; window is the trailing interval over
// which QPS is estimated. Both are fixed for the process lifetime.
func NewController(window time.Duration, targets []float64) *Controller {
	c := &Controller{
		window:  window,
		targets: targets,
		mu:      make([]sync.Mutex, len(targets)),
		records: make([][]time.Time, len(targets)),
	}
	return c
}

// Backends returns the number of backends the controller tracks.
func (c *Controller) Backends() int {
	return len(c.targets)
}

// Window returns the estimation window length.
func (c *Controller) Window() time.Duration {
	return c.window
}

// Target returns the QPS budget for backend b.
func (c *Controller) Target(b int) float64 {
	return c.targets[b]
}

// EstimateQPS returns the backend's current throughput estimate: the number
// of admission records inside the trailing window, divided by the window
// length in seconds.
func (c *Controller) EstimateQPS(b int, now time.Time) float64 {
	c.mu[b].Lock()
	defer c.mu[b].Unlock()
	return c.estimateLocked(b, now)
}

// Admit reports whether backend b may accept one more request at time now.
// On success the admission record is appended inside the same critical
// section, so concurrent callers cannot both pass on the last budget slot.
func (c *Controller) Admit(b int, now time.Time) bool {
	c.mu[b].Lock()
	defer c.mu[b].Unlock()

	if c.estimateLocked(b, now) >= c.targets[b] {
		return false
	}
	c.records[b] = append(c.records[b], now)
	return true
}

// estimateLocked counts in-window records for backend b and drops the stale
// prefix discovered by the scan. Records are appended in time order, so one
// contiguous suffix is always the in-window set: scan backward from the
// tail and stop at the first stale entry. Caller must hold c.mu[b].
func (c *Controller) estimateLocked(b int, now time.Time) float64 {
	recs := c.records[b]
	count := 0
	for i := len(recs) - 1; i >= 0; i-- {
		if now.Sub(recs[i]) > c.window {
			// Everything at or before i is stale; shed it now rather
			// than rescanning it on every future estimate.
			c.records[b] = append(recs[:0:0], recs[i+1:]...)
			break
		}
		count++
	}
	return float64(count) / c.window.Seconds()
}
