package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mdnaeem95/stupify-extension/analytics"
	"github.com/mdnaeem95/stupify-extension/auth"
	"github.com/mdnaeem95/stupify-extension/cache"
	"github.com/mdnaeem95/stupify-extension/connectivity"
	"github.com/mdnaeem95/stupify-extension/errors"
	"github.com/mdnaeem95/stupify-extension/internal/httpclient"
	stupifytest "github.com/mdnaeem95/stupify-extension/internal/testing"
	"github.com/mdnaeem95/stupify-extension/queue"
)

type gatewayFixture struct {
	gateway *Gateway
	monitor *connectivity.Monitor
	queue   *queue.Queue
	cache   *cache.Cache
	tokens  *auth.TokenStore
	db      *sql.DB
}

func newGatewayFixture(t *testing.T, srv *httptest.Server) *gatewayFixture {
	t.Helper()

	db := stupifytest.CreateTestDB(t)
	logger := zap.NewNop().Sugar()

	f := &gatewayFixture{
		monitor: connectivity.NewMonitor(connectivity.Options{}, logger),
		queue:   queue.New(db, 50, logger),
		cache:   cache.New(cache.NewStore(db), cache.DefaultOptions(), logger),
		tokens:  auth.NewTokenStore(logger),
		db:      db,
	}

	opts := Options{ResponseTTL: time.Hour}
	if srv != nil {
		opts.BaseURL = srv.URL
		opts.Client = httpclient.WrapClient(srv.Client())
	} else {
		opts.BaseURL = "http://127.0.0.1:1" // nothing listens here
		opts.Client = httpclient.WrapClient(&http.Client{Timeout: time.Second})
	}

	f.gateway = New(f.monitor, f.queue, f.cache, NewResponseCache(db, opts.ResponseTTL),
		analytics.NewBuffer(db, logger), f.tokens, opts, logger)
	f.gateway.sleep = func(context.Context, time.Duration) {}
	return f
}

func TestOfflineMutationIsQueued(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.monitor.SetOnline(false)

	_, err := f.gateway.Do(context.Background(), Request{
		Endpoint: "/api/ratings",
		Method:   http.MethodPost,
		Body:     json.RawMessage(`{"rating":5}`),
		Kind:     queue.KindRating,
	})
	require.Error(t, err)
	assert.True(t, errors.IsQueued(err), "expected queued outcome, got: %v", err)

	entries, err := f.queue.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, queue.KindRating, entries[0].Kind)
	assert.Equal(t, "/api/ratings", entries[0].Endpoint)
}

func TestOfflineReadServedFromResponseCache(t *testing.T) {
	f := newGatewayFixture(t, nil)

	responses := NewResponseCache(f.db, time.Hour)
	require.NoError(t, responses.Put("/api/profile", []byte(`{"name":"naeem"}`)))

	f.monitor.SetOnline(false)

	resp, err := f.gateway.Do(context.Background(), Request{
		Endpoint: "/api/profile",
		Method:   http.MethodGet,
	})
	require.NoError(t, err)
	assert.True(t, resp.Cached)
	assert.JSONEq(t, `{"name":"naeem"}`, string(resp.Body))
}

func TestOfflineReadWithoutCacheFails(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.monitor.SetOnline(false)

	_, err := f.gateway.Do(context.Background(), Request{
		Endpoint: "/api/profile",
		Method:   http.MethodGet,
	})
	require.Error(t, err)
	assert.True(t, errors.IsNoCacheAvailable(err))
}

func TestOnlineReadPopulatesResponseCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"naeem"}`))
	}))
	defer srv.Close()

	f := newGatewayFixture(t, srv)

	resp, err := f.gateway.Do(context.Background(), Request{
		Endpoint: "/api/profile",
		Method:   http.MethodGet,
	})
	require.NoError(t, err)
	assert.False(t, resp.Cached)

	// Going offline, the same read is now served from cache.
	f.monitor.SetOnline(false)
	resp, err = f.gateway.Do(context.Background(), Request{
		Endpoint: "/api/profile",
		Method:   http.MethodGet,
	})
	require.NoError(t, err)
	assert.True(t, resp.Cached)
	assert.JSONEq(t, `{"name":"naeem"}`, string(resp.Body))
}

func TestUnauthorizedInvalidatesTokenWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newGatewayFixture(t, srv)
	f.tokens.SetToken("stale-token")

	var invalidated bool
	f.tokens.OnInvalidate(func() { invalidated = true })

	_, err := f.gateway.Do(context.Background(), Request{
		Endpoint:     "/api/profile",
		Method:       http.MethodGet,
		RequiresAuth: true,
	})
	require.Error(t, err)
	assert.True(t, errors.IsUnauthorized(err))
	assert.True(t, invalidated)
	assert.Empty(t, f.tokens.Token())
	assert.Equal(t, int32(1), calls.Load(), "auth failures must not be retried")
}

func TestOnlineMutationFallsBackToQueueAfterRetries(t *testing.T) {
	f := newGatewayFixture(t, nil) // nothing listening: every attempt fails

	_, err := f.gateway.Do(context.Background(), Request{
		Endpoint: "/api/ratings",
		Method:   http.MethodPost,
		Body:     json.RawMessage(`{"rating":4}`),
		Kind:     queue.KindRating,
	})
	require.Error(t, err)
	assert.True(t, errors.IsQueued(err))

	count, err := f.queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOnlineReadFailureFallsBackToCachedResponse(t *testing.T) {
	f := newGatewayFixture(t, nil)

	responses := NewResponseCache(f.db, time.Hour)
	require.NoError(t, responses.Put("/api/profile", []byte(`{"name":"cached"}`)))

	resp, err := f.gateway.Do(context.Background(), Request{
		Endpoint: "/api/profile",
		Method:   http.MethodGet,
	})
	require.NoError(t, err)
	assert.True(t, resp.Cached)
}

func TestTransientFailureRetriedLocally(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := newGatewayFixture(t, srv)

	resp, err := f.gateway.Do(context.Background(), Request{
		Endpoint: "/api/profile",
		Method:   http.MethodGet,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestGetExplanationCacheHitSkipsNetworkEvenOnline(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"answer":"network answer"}`))
	}))
	defer srv.Close()

	f := newGatewayFixture(t, srv)
	f.cache.Put("what is dns?", cache.Tier2, "cached answer")

	exp, err := f.gateway.GetExplanation(context.Background(), "What is DNS?", cache.Tier2)
	require.NoError(t, err)
	assert.True(t, exp.FromCache)
	assert.Equal(t, "cached answer", exp.Answer)
	assert.Equal(t, int32(0), calls.Load(), "cache hit must short-circuit the network")
}

func TestGetExplanationWritesThroughToCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"answer":"fresh answer"}`))
	}))
	defer srv.Close()

	f := newGatewayFixture(t, srv)

	exp, err := f.gateway.GetExplanation(context.Background(), "what is dns?", cache.Tier1)
	require.NoError(t, err)
	assert.False(t, exp.FromCache)
	assert.Equal(t, "fresh answer", exp.Answer)

	// Second ask hits the cache, no extra network call.
	exp, err = f.gateway.GetExplanation(context.Background(), "what is dns?", cache.Tier1)
	require.NoError(t, err)
	assert.True(t, exp.FromCache)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetExplanationOfflineWithoutCacheFails(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.monitor.SetOnline(false)

	_, err := f.gateway.GetExplanation(context.Background(), "what is dns?", cache.Tier1)
	require.Error(t, err)
	assert.True(t, errors.IsOfflineNoCache(err))
}

func TestGetExplanationOfflineCacheHitStillWorks(t *testing.T) {
	f := newGatewayFixture(t, nil)
	f.cache.Put("what is dns?", cache.Tier1, "cached answer")
	f.monitor.SetOnline(false)

	exp, err := f.gateway.GetExplanation(context.Background(), "what is dns?", cache.Tier1)
	require.NoError(t, err)
	assert.True(t, exp.FromCache)
}

func TestGetExplanationRejectsInvalidTier(t *testing.T) {
	f := newGatewayFixture(t, nil)

	_, err := f.gateway.GetExplanation(context.Background(), "what is dns?", "tier9")
	assert.Error(t, err)
}

func TestUsageLimitAppliesToFreshRequestsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answer":"a"}`))
	}))
	defer srv.Close()

	f := newGatewayFixture(t, srv)
	f.gateway.SetUsageLimit(2)

	_, err := f.gateway.GetExplanation(context.Background(), "first unique question here", cache.Tier1)
	require.NoError(t, err)
	_, err = f.gateway.GetExplanation(context.Background(), "second totally different topic", cache.Tier1)
	require.NoError(t, err)

	_, err = f.gateway.GetExplanation(context.Background(), "third brand new subject matter", cache.Tier1)
	require.Error(t, err)
	assert.True(t, errors.IsRateLimited(err))

	// Cache hits are exempt from the limit.
	exp, err := f.gateway.GetExplanation(context.Background(), "first unique question here", cache.Tier1)
	require.NoError(t, err)
	assert.True(t, exp.FromCache)
}

func TestStatsReportsSizes(t *testing.T) {
	f := newGatewayFixture(t, nil)

	f.cache.Put("what is dns?", cache.Tier1, "answer")
	f.monitor.SetOnline(false)
	_, err := f.gateway.Do(context.Background(), Request{
		Endpoint: "/api/ratings",
		Method:   http.MethodPost,
		Kind:     queue.KindRating,
	})
	require.True(t, errors.IsQueued(err))

	stats, err := f.gateway.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CacheSize)
	assert.Equal(t, 1, stats.QueueSize)
	assert.True(t, stats.Offline)
}

func TestDeliverReplaysQueuedRequest(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newGatewayFixture(t, srv)

	req, err := queue.NewRatingRequest("/api/ratings", queue.RatingPayload{ExplanationID: "exp-1", Rating: 5})
	require.NoError(t, err)

	require.NoError(t, f.gateway.Deliver(context.Background(), req))
	assert.Equal(t, "/api/ratings", gotPath)
	assert.Contains(t, gotBody, "exp-1")
}

func TestDeliverReportsBackendRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newGatewayFixture(t, srv)

	req, err := queue.NewRatingRequest("/api/ratings", queue.RatingPayload{ExplanationID: "exp-1", Rating: 5})
	require.NoError(t, err)

	assert.Error(t, f.gateway.Deliver(context.Background(), req))
}
