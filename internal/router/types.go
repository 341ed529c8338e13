package router

import "time"

// BackendStats is a read-only snapshot of one backend.
type BackendStats struct {
	Backend     int     `json:"backend"`
	URL         string  `json:"url"`
	QueueDepth  int     `json:"queue_depth"`
	Processed   int64   `json:"processed"`
	Failed      int64   `json:"failed"`
	CurrentQPS  float64 `json:"current_qps"`
	LifetimeQPS float64 `json:"lifetime_qps"`
	TargetQPS   float64 `json:"target_qps"`
	BoundUsers  int     `json:"bound_users"`
}

// Stats is a read-only snapshot of the whole router.
type Stats struct {
	Uptime      time.Duration  `json:"uptime"`
	TotalRouted int64          `json:"total_routed"`
	TotalUsers  int            `json:"total_users"`
	Backends    []BackendStats `json:"backends"`
}

// Record is a terminal request retained in the bounded history and handed
// to the optional audit sink.
type Record struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Backend    int           `json:"backend"`
	State      string        `json:"state"`
	Arrival    time.Time     `json:"arrival"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`
	Error      string        `json:"error,omitempty"`
}
