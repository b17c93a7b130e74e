// Package gateway routes backend calls through the offline decision table:
// online calls go to the network, offline mutations are queued, offline reads
// fall back to cached responses.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mdnaeem95/stupify-extension/analytics"
	"github.com/mdnaeem95/stupify-extension/auth"
	"github.com/mdnaeem95/stupify-extension/cache"
	"github.com/mdnaeem95/stupify-extension/connectivity"
	"github.com/mdnaeem95/stupify-extension/errors"
	"github.com/mdnaeem95/stupify-extension/internal/httpclient"
	"github.com/mdnaeem95/stupify-extension/queue"
	"github.com/mdnaeem95/stupify-extension/syncer"
)

// DefaultTimeout bounds each network attempt.
const DefaultTimeout = 30 * time.Second

// localRetries is how many times a transient network failure is retried
// in-place before the call is reclassified (queued or failed).
const localRetries = 2

// localRetryDelay separates in-place retry attempts.
const localRetryDelay = 500 * time.Millisecond

// Request describes a backend call going through the gateway.
type Request struct {
	Endpoint string
	Method   string
	Body     json.RawMessage
	// Kind classifies the request if it has to be queued. Required for
	// mutating requests unless SkipQueue is set.
	Kind         queue.Kind
	RequiresAuth bool
	// SkipQueue disables the queue fallback for a mutating request. Mutating
	// requests queue by default; reads never queue.
	SkipQueue bool
}

// Response is the successful outcome of a gateway call. Cached is true when
// the body came from the response cache rather than the network.
type Response struct {
	StatusCode int
	Body       []byte
	Cached     bool
}

// Options configures a Gateway.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	ResponseTTL time.Duration
	UsageLimit  int
	// Client overrides the outbound HTTP client. Tests use this to point at
	// a local server.
	Client *httpclient.Client
}

// Gateway is the single entry point for backend calls. Every component that
// talks to the network goes through it so offline handling, auth, timeouts,
// and rate limiting live in one place.
type Gateway struct {
	baseURL   string
	timeout   time.Duration
	client    *httpclient.Client
	monitor   *connectivity.Monitor
	queue     *queue.Queue
	cache     *cache.Cache
	responses *ResponseCache
	buffer    *analytics.Buffer
	tokens    *auth.TokenStore
	limiter   *usageLimiter
	logger    *zap.SugaredLogger

	// syncStatus reports the engine's current state for Stats. Bound after
	// construction because the engine needs the gateway's Deliver first.
	syncStatus func() syncer.Status

	// sleep is swapped out in tests so local retries run instantly.
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a gateway.
func New(monitor *connectivity.Monitor, q *queue.Queue, expCache *cache.Cache, responses *ResponseCache, buffer *analytics.Buffer, tokens *auth.TokenStore, opts Options, logger *zap.SugaredLogger) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = httpclient.New(opts.Timeout)
	}
	return &Gateway{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		timeout:   opts.Timeout,
		client:    client,
		monitor:   monitor,
		queue:     q,
		cache:     expCache,
		responses: responses,
		buffer:    buffer,
		tokens:    tokens,
		limiter:   newUsageLimiter(opts.UsageLimit),
		logger:    logger,
		sleep:     sleepCtx,
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

// BindEngine wires the sync engine in for Stats reporting.
func (g *Gateway) BindEngine(e *syncer.Engine) {
	g.syncStatus = e.Status
}

// SetUsageLimit adjusts the explanation rate limit, e.g. on config reload.
func (g *Gateway) SetUsageLimit(maxPerMinute int) {
	g.limiter.setLimit(maxPerMinute)
}

func isMutating(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// Do routes a call through the offline decision table.
//
// Offline: mutating requests are enqueued and fail with ErrQueued (render as
// "saved for later", not an error); reads return a fresh cached response or
// fail with ErrNoCacheAvailable. Online: the call goes out with a local retry
// loop for transient failures; a 401 invalidates the auth token and fails
// with ErrUnauthorized; any other failure falls back to the queue (mutations)
// or the response cache (reads) before surfacing a hard error.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		return nil, errors.New("request method is required")
	}
	mutating := isMutating(req.Method)

	if g.monitor.IsOffline() {
		if mutating {
			if req.SkipQueue {
				return nil, errors.Newf("%s %s failed: offline", req.Method, req.Endpoint)
			}
			return nil, g.enqueue(req)
		}
		return g.cachedResponse(req)
	}

	resp, err := g.attemptWithRetries(ctx, req)
	if err == nil {
		if !mutating && g.responses != nil {
			if cacheErr := g.responses.Put(req.Endpoint, resp.Body); cacheErr != nil {
				g.logger.Warnw("Failed to cache response", "endpoint", req.Endpoint, "error", cacheErr)
			}
		}
		return resp, nil
	}

	// Caller cancellation aborts the call without queue or cache fallback.
	if ctx.Err() != nil {
		return nil, errors.Wrap(ctx.Err(), "request cancelled")
	}
	if errors.IsUnauthorized(err) {
		return nil, err
	}

	if mutating && !req.SkipQueue {
		g.logger.Debugw("Network call failed, deferring to queue",
			"endpoint", req.Endpoint,
			"error", err,
		)
		if qErr := g.enqueue(req); errors.IsQueued(qErr) {
			return nil, qErr
		}
		return nil, err
	}

	if !mutating {
		if resp, cacheErr := g.cachedResponse(req); cacheErr == nil {
			g.logger.Debugw("Network call failed, served cached response",
				"endpoint", req.Endpoint,
				"error", err,
			)
			return resp, nil
		}
	}

	return nil, err
}

// enqueue defers a mutating request and returns the queued outcome.
func (g *Gateway) enqueue(req Request) error {
	queued, err := queue.NewRawRequest(req.Kind, req.Endpoint, strings.ToUpper(req.Method), req.Body)
	if err != nil {
		return errors.Wrap(err, "cannot queue request")
	}
	id, err := g.queue.Enqueue(queued)
	if err != nil {
		return errors.Wrap(err, "failed to queue request")
	}
	return errors.Wrapf(errors.ErrQueued, "%s %s deferred as %s", req.Method, req.Endpoint, id)
}

// cachedResponse serves a read from the response cache, or fails with
// ErrNoCacheAvailable.
func (g *Gateway) cachedResponse(req Request) (*Response, error) {
	if g.responses != nil {
		body, err := g.responses.Get(req.Endpoint)
		if err != nil {
			g.logger.Warnw("Response cache lookup failed", "endpoint", req.Endpoint, "error", err)
		}
		if body != nil {
			return &Response{StatusCode: http.StatusOK, Body: body, Cached: true}, nil
		}
	}
	return nil, errors.Wrapf(errors.ErrNoCacheAvailable, "%s %s", req.Method, req.Endpoint)
}

// attemptWithRetries performs the network call, retrying transient failures
// in place before giving up. Auth failures and context cancellation are never
// retried.
func (g *Gateway) attemptWithRetries(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= localRetries; attempt++ {
		if attempt > 0 {
			g.sleep(ctx, localRetryDelay)
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "request cancelled")
			}
		}

		resp, err := g.attempt(ctx, req.Method, req.Endpoint, req.Body, req.RequiresAuth)
		if err == nil {
			return resp, nil
		}
		if errors.IsUnauthorized(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// attempt performs a single network call. A 401 triggers token invalidation
// as a side effect before the error surfaces.
func (g *Gateway) attempt(ctx context.Context, method, endpoint string, body json.RawMessage, requiresAuth bool) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), g.baseURL+endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	if len(body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if requiresAuth {
		if token := g.tokens.Token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || (ctx.Err() == context.DeadlineExceeded) {
			return nil, errors.Wrapf(errors.ErrTimeout, "%s %s", method, endpoint)
		}
		return nil, errors.Wrapf(err, "%s %s failed", method, endpoint)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized:
		g.tokens.Invalidate()
		return nil, errors.Wrapf(errors.ErrUnauthorized, "%s %s", method, endpoint)
	case httpResp.StatusCode >= 400:
		return nil, errors.Newf("%s %s returned %d: %s", method, endpoint, httpResp.StatusCode, truncate(respBody, 200))
	}

	return &Response{StatusCode: httpResp.StatusCode, Body: respBody}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Deliver replays a queued request against the backend. Used by the sync
// engine; satisfies syncer.Deliverer.
func (g *Gateway) Deliver(ctx context.Context, req *queue.Request) error {
	_, err := g.attempt(ctx, req.Method, req.Endpoint, req.Payload, true)
	return err
}

// SendAnalytics flushes a batch of buffered events. Satisfies
// analytics.Sender.
func (g *Gateway) SendAnalytics(ctx context.Context, events []analytics.Event) error {
	body, err := json.Marshal(map[string]interface{}{"events": events})
	if err != nil {
		return errors.Wrap(err, "failed to encode analytics batch")
	}
	_, err = g.attempt(ctx, http.MethodPost, "/api/analytics", body, true)
	return err
}

// OfflineStats is the summary surfaced to the extension UI.
type OfflineStats struct {
	CacheSize int          `json:"cache_size"`
	QueueSize int          `json:"queue_size"`
	SyncState syncer.State `json:"sync_state"`
	Offline   bool         `json:"offline"`
}

// Stats reports current offline-subsystem state.
func (g *Gateway) Stats() (*OfflineStats, error) {
	cacheSize, err := g.cache.Size()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read cache size")
	}
	queueSize, err := g.queue.Count()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read queue size")
	}

	state := syncer.StateIdle
	if g.syncStatus != nil {
		state = g.syncStatus().State
	}

	return &OfflineStats{
		CacheSize: cacheSize,
		QueueSize: queueSize,
		SyncState: state,
		Offline:   g.monitor.IsOffline(),
	}, nil
}
