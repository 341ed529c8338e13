package router

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flowgate/flowgate/internal/admission"
	"github.com/flowgate/flowgate/internal/affinity"
	"github.com/flowgate/flowgate/internal/forward"
)

// Router dispatches inbound requests to sticky backends under admission
// control.
type Router interface {
	// Start launches one worker per backend.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the workers.
	Stop(ctx context.Context) error

	// Submit assigns the request to its user's backend and enqueues it.
	// Detached requests are forwarded by the backend worker; attached
	// requests wait for Await and are forwarded by the caller.
	Submit(userID, method, path string, header http.Header, body []byte, detached bool) *QueuedRequest

	// Await blocks until the request is admitted or ctx is done. On
	// cancellation while still queued, the request is abandoned and marked
	// failed; an admission record already written is not refunded.
	Await(ctx context.Context, qr *QueuedRequest) error

	// BeginForwarding transitions an admitted request to Forwarding.
	BeginForwarding(qr *QueuedRequest)

	// Complete marks the request terminal and updates counters, history,
	// and the audit sink.
	Complete(qr *QueuedRequest, err error)

	// ForwardRequest builds the outbound call for an admitted request.
	ForwardRequest(qr *QueuedRequest) forward.Request

	// Recent returns the bounded history of terminal requests, oldest first.
	Recent() []Record

	// Stats returns a read-only snapshot of router state.
	Stats() Stats
}

// Config holds router settings. The backend URL list is immutable; its
// indices are the backend ids used everywhere else.
type Config struct {
	Backends     []string
	PollInterval time.Duration
	HistorySize  int
}

// Sink receives every terminal request record. Used by the optional audit
// trail; may be nil.
type Sink func(Record)

// Option configures a Router.
type Option func(*router)

// WithSink sets the terminal-record sink.
func WithSink(sink Sink) Option {
	return func(r *router) {
		r.sink = sink
	}
}

// router is the internal implementation.
type router struct {
	cfg    Config
	table  *affinity.Table
	ctrl   *admission.Controller
	fwd    *forward.Forwarder
	logger *slog.Logger
	sink   Sink

	queues    []*dispatchQueue
	processed []atomic.Int64
	failed    []atomic.Int64

	totalRouted atomic.Int64
	startTime   time.Time
	hist        *history

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Router over the fixed backend list.
func New(cfg Config, table *affinity.Table, ctrl *admission.Controller, fwd *forward.Forwarder, logger *slog.Logger, opts ...Option) Router {
	if logger == nil {
		logger = slog.Default()
	}

	n := len(cfg.Backends)
	r := &router{
		cfg:       cfg,
		table:     table,
		ctrl:      ctrl,
		fwd:       fwd,
		logger:    logger,
		queues:    make([]*dispatchQueue, n),
		processed: make([]atomic.Int64, n),
		failed:    make([]atomic.Int64, n),
		startTime: time.Now(),
		hist:      newHistory(cfg.HistorySize),
	}
	for b := range r.queues {
		r.queues[b] = &dispatchQueue{}
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the backend workers.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.startTime = time.Now()

	for b := range r.queues {
		r.wg.Add(1)
		go r.workerLoop(b)
	}

	r.logger.Info("router started",
		"backends", len(r.cfg.Backends),
		"poll_interval", r.cfg.PollInterval,
	)
	return nil
}

// Stop gracefully shuts down the workers.
func (r *router) Stop(ctx context.Context) error {
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
		r.logger.Info("router stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("router stop timed out")
		return ctx.Err()
	}
}

// Submit assigns and enqueues one request.
func (r *router) Submit(userID, method, path string, header http.Header, body []byte, detached bool) *QueuedRequest {
	backend, assigned := r.table.AssignOrGet(userID)

	qr := &QueuedRequest{
		ID:       uuid.NewString(),
		UserID:   userID,
		Backend:  backend,
		Arrival:  time.Now(),
		Method:   method,
		Path:     path,
		Header:   header.Clone(),
		Body:     body,
		detached: detached,
		grant:    make(chan struct{}),
	}

	r.queues[backend].push(qr)
	r.totalRouted.Add(1)

	if assigned {
		r.logger.Info("new user bound",
			"user", userID,
			"backend", backend,
		)
	}
	r.logger.Debug("request queued",
		"request_id", qr.ID,
		"user", userID,
		"backend", backend,
		"queue_depth", r.queues[backend].depth(),
	)
	return qr
}

// Await blocks until admission or cancellation.
func (r *router) Await(ctx context.Context, qr *QueuedRequest) error {
	select {
	case <-qr.grant:
		return nil
	case <-ctx.Done():
		if qr.transition(StateQueued, StateFailed) {
			// Abandoned while queued; the worker discards it without
			// spending budget.
			r.failed[qr.Backend].Add(1)
			r.finish(qr, ctx.Err())
			return ctx.Err()
		}
		// Admission already granted; the budget slot is spent either way,
		// so let the caller proceed and fail on its own dead context.
		<-qr.grant
		return nil
	}
}

// BeginForwarding transitions an admitted request to Forwarding.
func (r *router) BeginForwarding(qr *QueuedRequest) {
	qr.transition(StateAdmitted, StateForwarding)
}

// Complete marks the request terminal.
func (r *router) Complete(qr *QueuedRequest, err error) {
	to := StateCompleted
	if err != nil {
		to = StateFailed
	}
	if !qr.transition(StateForwarding, to) && !qr.transition(StateAdmitted, to) {
		return // already terminal
	}

	if err != nil {
		r.failed[qr.Backend].Add(1)
	} else {
		r.processed[qr.Backend].Add(1)
	}
	r.finish(qr, err)
}

// ForwardRequest builds the outbound call for qr.
func (r *router) ForwardRequest(qr *QueuedRequest) forward.Request {
	return forward.Request{
		ID:      qr.ID,
		Backend: qr.Backend,
		URL:     r.cfg.Backends[qr.Backend] + qr.Path,
		Method:  qr.Method,
		Header:  qr.Header,
		Body:    qr.Body,
	}
}

// Recent returns the bounded terminal-request history, oldest first.
func (r *router) Recent() []Record {
	return r.hist.recent()
}

// Stats returns a read-only snapshot.
func (r *router) Stats() Stats {
	now := time.Now()
	elapsed := now.Sub(r.startTime)

	stats := Stats{
		Uptime:      elapsed,
		TotalRouted: r.totalRouted.Load(),
		TotalUsers:  r.table.Total(),
		Backends:    make([]BackendStats, len(r.queues)),
	}
	for b := range r.queues {
		processed := r.processed[b].Load()
		lifetime := 0.0
		if elapsed > 0 {
			lifetime = float64(processed) / elapsed.Seconds()
		}
		stats.Backends[b] = BackendStats{
			Backend:     b,
			URL:         r.cfg.Backends[b],
			QueueDepth:  r.queues[b].depth(),
			Processed:   processed,
			Failed:      r.failed[b].Load(),
			CurrentQPS:  r.ctrl.EstimateQPS(b, now),
			LifetimeQPS: lifetime,
			TargetQPS:   r.ctrl.Target(b),
			BoundUsers:  r.table.Users(b),
		}
	}
	return stats
}

// workerLoop drains one backend's queue at the polling cadence.
func (r *router) workerLoop(b int) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.tick(b)
		}
	}
}

// tick grants at most one admission. Admission is re-evaluated per queued
// item: a burst arriving into an empty window still drains one request per
// poll, never as a batch.
func (r *router) tick(b int) {
	q := r.queues[b]

	// Shed abandoned entries at the head without consuming budget.
	for {
		head := q.peek()
		if head == nil {
			return
		}
		if head.State() == StateQueued {
			break
		}
		q.pop()
	}

	if !r.ctrl.Admit(b, time.Now()) {
		return
	}

	head := q.pop()
	if head == nil {
		return
	}
	if !head.transition(StateQueued, StateAdmitted) {
		// The caller disconnected between the head check and admission.
		// The admission record stands; it is not refunded.
		return
	}

	if head.detached {
		r.wg.Add(1)
		go r.forwardDetached(head)
		return
	}
	close(head.grant)
}

// forwardDetached performs a fire-and-forget forward on behalf of a caller
// that already received its acceptance response.
func (r *router) forwardDetached(qr *QueuedRequest) {
	defer r.wg.Done()

	r.BeginForwarding(qr)
	resp, err := r.fwd.Buffered(r.ctx, r.ForwardRequest(qr))
	if err != nil {
		r.Complete(qr, err)
		return
	}

	r.logger.Debug("detached forward done",
		"request_id", qr.ID,
		"backend", qr.Backend,
		"status", resp.StatusCode,
	)
	r.Complete(qr, nil)
}

// finish records a terminal request in history and the audit sink.
func (r *router) finish(qr *QueuedRequest, err error) {
	now := time.Now()
	rec := Record{
		ID:         qr.ID,
		UserID:     qr.UserID,
		Backend:    qr.Backend,
		State:      qr.State().String(),
		Arrival:    qr.Arrival,
		FinishedAt: now,
		Elapsed:    now.Sub(qr.Arrival),
	}
	if err != nil {
		rec.Error = err.Error()
		r.logger.Warn("request failed",
			"request_id", qr.ID,
			"backend", qr.Backend,
			"elapsed", rec.Elapsed,
			"err", err,
		)
	}

	r.hist.add(rec)
	if r.sink != nil {
		r.sink(rec)
	}
}
