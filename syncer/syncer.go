// Package syncer drains the request queue and analytics buffer whenever
// connectivity returns, with per-item retry ceilings and backoff.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mdnaeem95/stupify-extension/analytics"
	"github.com/mdnaeem95/stupify-extension/connectivity"
	"github.com/mdnaeem95/stupify-extension/queue"
)

// DefaultMaxRetries is the delivery attempt ceiling per queued request.
const DefaultMaxRetries = 3

// DefaultInterval is how often a periodic pass runs while online.
const DefaultInterval = 60 * time.Second

// DefaultBackoff is the per-item delay schedule indexed by retry count,
// capped at the last value.
var DefaultBackoff = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}

// Deliverer replays a queued request against the backend. A nil error means
// the backend accepted it.
type Deliverer func(ctx context.Context, req *queue.Request) error

// Options configures an Engine.
type Options struct {
	MaxRetries int
	Backoff    []time.Duration
	Interval   time.Duration
}

// Engine runs sync passes over the request queue. At most one pass is active
// at a time; triggers arriving mid-pass are dropped, not queued. Triggers are
// the connectivity offline-to-online flip and a periodic ticker that fires
// only while online.
type Engine struct {
	queue         *queue.Queue
	buffer        *analytics.Buffer
	monitor       *connectivity.Monitor
	deliver       Deliverer
	sendAnalytics analytics.Sender

	maxRetries int
	backoff    []time.Duration
	interval   time.Duration

	syncing atomic.Bool

	mu        sync.Mutex
	status    Status
	subs      map[int]func(Status)
	nextSubID int

	// sleep is swapped out in tests so backoff passes run instantly.
	sleep func(ctx context.Context, d time.Duration)

	logger *zap.SugaredLogger

	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()
}

// New creates a sync engine. deliver replays queued requests; sendAnalytics
// flushes buffered events in bulk.
func New(q *queue.Queue, buffer *analytics.Buffer, monitor *connectivity.Monitor, deliver Deliverer, sendAnalytics analytics.Sender, opts Options, logger *zap.SugaredLogger) *Engine {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if len(opts.Backoff) == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Engine{
		queue:         q,
		buffer:        buffer,
		monitor:       monitor,
		deliver:       deliver,
		sendAnalytics: sendAnalytics,
		maxRetries:    opts.MaxRetries,
		backoff:       opts.Backoff,
		interval:      opts.Interval,
		status:        Status{State: StateIdle, At: time.Now()},
		subs:          make(map[int]func(Status)),
		sleep:         sleepCtx,
		logger:        logger,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Status returns the most recently published status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Subscribe registers a callback invoked on every status change. Returns an
// unsubscribe function. A panicking subscriber does not prevent others from
// being notified.
func (e *Engine) Subscribe(fn func(Status)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) publish(status Status) {
	status.At = time.Now()

	e.mu.Lock()
	e.status = status
	subs := make([]func(Status), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		e.notify(fn, status)
	}
}

func (e *Engine) notify(fn func(Status), status Status) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("Sync status subscriber panicked", "panic", r)
		}
	}()
	fn(status)
}

// Start wires the engine to its triggers: connectivity restoration and the
// periodic ticker. Runs until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.done != nil {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	done := make(chan struct{})
	e.done = done
	e.mu.Unlock()

	e.unsubscribe = e.monitor.Subscribe(func(offline bool) {
		if offline {
			return
		}
		e.logger.Infow("Connectivity restored, triggering sync pass")
		go e.SyncNow(ctx)
	})

	go e.tickLoop(ctx, done)
}

// Stop detaches the engine from its triggers and waits for the tick loop to
// exit. An in-flight pass finishes on its own.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	cancel()
	<-done
}

func (e *Engine) tickLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.monitor.IsOffline() {
				continue
			}
			e.SyncNow(ctx)
		}
	}
}

// SyncNow runs a single sync pass. Returns an empty result immediately if
// offline or if a pass is already running.
func (e *Engine) SyncNow(ctx context.Context) Result {
	if e.monitor.IsOffline() {
		return Result{}
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return Result{}
	}
	defer e.syncing.Store(false)

	e.publish(Status{State: StateSyncing})

	entries, err := e.queue.List()
	if err != nil {
		e.logger.Errorw("Sync pass failed to read queue", "error", err)
		e.publish(Status{State: StateError, Message: err.Error()})
		return Result{Errors: []string{err.Error()}}
	}

	var result Result
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}

		if entry.RetryCount >= e.maxRetries {
			// Retry ceiling exhausted: drop silently, report in aggregate.
			if err := e.queue.Remove(entry.ID); err != nil {
				e.logger.Errorw("Failed to remove exhausted request", "id", entry.ID, "error", err)
			}
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("request %s (%s) permanently failed after %d attempts", entry.ID, entry.Kind, entry.RetryCount))
			e.logger.Warnw("Queued request permanently failed",
				"id", entry.ID,
				"kind", entry.Kind,
				"retries", entry.RetryCount,
			)
			continue
		}

		if entry.RetryCount > 0 {
			e.sleep(ctx, e.backoffFor(entry.RetryCount))
			if ctx.Err() != nil {
				break
			}
		}

		if err := e.deliver(ctx, entry); err != nil {
			if incErr := e.queue.IncrementRetry(entry.ID); incErr != nil {
				e.logger.Errorw("Failed to increment retry count", "id", entry.ID, "error", incErr)
			}
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("request %s (%s): %s", entry.ID, entry.Kind, err))
			e.logger.Debugw("Delivery failed, will retry",
				"id", entry.ID,
				"kind", entry.Kind,
				"retries", entry.RetryCount+1,
				"error", err,
			)
			continue
		}

		if err := e.queue.Remove(entry.ID); err != nil {
			e.logger.Errorw("Failed to remove delivered request", "id", entry.ID, "error", err)
		}
		result.Success++
	}

	// Analytics drain is fire-and-forget: failures keep the events buffered
	// for the next pass and never fail the pass itself.
	if e.buffer != nil && e.sendAnalytics != nil {
		if sent, err := e.buffer.Flush(ctx, e.sendAnalytics); err == nil && sent > 0 {
			e.logger.Debugw("Analytics drained", "count", sent)
		}
	}

	e.publish(e.statusFor(result))

	if result.Success > 0 || result.Failed > 0 {
		e.logger.Infow("Sync pass complete",
			"success", result.Success,
			"failed", result.Failed,
		)
	}

	return result
}

// backoffFor returns the per-item delay before the next delivery attempt,
// capped at the last schedule entry.
func (e *Engine) backoffFor(retryCount int) time.Duration {
	idx := retryCount - 1
	if idx >= len(e.backoff) {
		idx = len(e.backoff) - 1
	}
	return e.backoff[idx]
}

func (e *Engine) statusFor(result Result) Status {
	switch {
	case result.Success == 0 && result.Failed == 0:
		return Status{State: StateIdle}
	case result.Failed == 0:
		return Status{State: StateSuccess, Success: result.Success}
	default:
		return Status{
			State:   StatePartial,
			Success: result.Success,
			Failed:  result.Failed,
			Message: fmt.Sprintf("%d request(s) not delivered", result.Failed),
		}
	}
}
