package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowgate/flowgate/internal/router"
)

// StatsSource provides read-only router snapshots.
type StatsSource interface {
	Stats() router.Stats
}

// Config holds reporter configuration.
type Config struct {
	Interval time.Duration // Report interval (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Second}
}

// Reporter periodically logs and broadcasts router status.
type Reporter struct {
	cfg    Config
	source StatsSource
	feed   *Feed
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Reporter. feed may be nil to disable live broadcasting.
func New(cfg Config, source StatsSource, feed *Feed, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Reporter{
		cfg:    cfg,
		source: source,
		feed:   feed,
		logger: logger,
	}
}

// Start begins the reporting loop.
func (r *Reporter) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("status reporter started", "interval", r.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the reporter.
func (r *Reporter) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("status reporter stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main reporting loop.
func (r *Reporter) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

// report snapshots the router and emits one status round.
func (r *Reporter) report() {
	stats := r.source.Stats()

	for _, b := range stats.Backends {
		r.logger.Info("backend status",
			"backend", b.Backend,
			"current_qps", fmt.Sprintf("%.2f", b.CurrentQPS),
			"lifetime_qps", fmt.Sprintf("%.2f", b.LifetimeQPS),
			"target_qps", b.TargetQPS,
			"queue_depth", b.QueueDepth,
			"bound_users", b.BoundUsers,
			"processed", b.Processed,
			"failed", b.Failed,
		)
	}
	r.logger.Info("overall status",
		"total_requests", stats.TotalRouted,
		"unique_users", stats.TotalUsers,
		"uptime", stats.Uptime.Round(time.Second),
	)

	if r.feed != nil {
		r.feed.Broadcast(stats)
	}
}
