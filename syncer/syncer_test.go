package syncer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mdnaeem95/stupify-extension/analytics"
	"github.com/mdnaeem95/stupify-extension/connectivity"
	"github.com/mdnaeem95/stupify-extension/errors"
	stupifytest "github.com/mdnaeem95/stupify-extension/internal/testing"
	"github.com/mdnaeem95/stupify-extension/queue"
)

type fixture struct {
	engine  *Engine
	queue   *queue.Queue
	buffer  *analytics.Buffer
	monitor *connectivity.Monitor
	slept   []time.Duration
}

// newFixture builds an engine over an in-memory database with an instant
// sleep that records requested backoff delays.
func newFixture(t *testing.T, deliver Deliverer, send analytics.Sender) *fixture {
	t.Helper()

	db := stupifytest.CreateTestDB(t)
	logger := zap.NewNop().Sugar()

	f := &fixture{
		queue:   queue.New(db, 50, logger),
		buffer:  analytics.NewBuffer(db, logger),
		monitor: connectivity.NewMonitor(connectivity.Options{}, logger),
	}
	f.engine = New(f.queue, f.buffer, f.monitor, deliver, send, Options{}, logger)
	f.engine.sleep = func(_ context.Context, d time.Duration) {
		f.slept = append(f.slept, d)
	}
	return f
}

func enqueueRating(t *testing.T, q *queue.Queue, explanationID string) string {
	t.Helper()
	req, err := queue.NewRatingRequest("/api/ratings", queue.RatingPayload{ExplanationID: explanationID, Rating: 4})
	require.NoError(t, err)
	id, err := q.Enqueue(req)
	require.NoError(t, err)
	return id
}

func TestSyncNowWhileOfflineIsNoOp(t *testing.T) {
	delivered := 0
	f := newFixture(t, func(_ context.Context, _ *queue.Request) error {
		delivered++
		return nil
	}, nil)

	enqueueRating(t, f.queue, "exp-1")
	f.monitor.SetOnline(false)

	result := f.engine.SyncNow(context.Background())
	assert.Equal(t, Result{}, result)
	assert.Equal(t, 0, delivered)

	count, err := f.queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "queue must be untouched while offline")
}

func TestSuccessfulPassDrainsQueue(t *testing.T) {
	var delivered []string
	f := newFixture(t, func(_ context.Context, req *queue.Request) error {
		delivered = append(delivered, req.ID)
		return nil
	}, nil)

	id1 := enqueueRating(t, f.queue, "exp-1")
	id2 := enqueueRating(t, f.queue, "exp-2")

	result := f.engine.SyncNow(context.Background())
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []string{id1, id2}, delivered, "delivery proceeds in enqueue order")

	count, err := f.queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.Equal(t, StateSuccess, f.engine.Status().State)
}

func TestFailedDeliveryStaysQueuedWithIncrementedRetry(t *testing.T) {
	f := newFixture(t, func(_ context.Context, _ *queue.Request) error {
		return errors.New("backend unavailable")
	}, nil)

	enqueueRating(t, f.queue, "exp-1")

	result := f.engine.SyncNow(context.Background())
	assert.Equal(t, 0, result.Success)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)

	entries, err := f.queue.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)

	assert.Equal(t, StatePartial, f.engine.Status().State)
}

func TestRetryCeilingRemovesEntryPermanently(t *testing.T) {
	delivered := 0
	f := newFixture(t, func(_ context.Context, _ *queue.Request) error {
		delivered++
		return errors.New("backend unavailable")
	}, nil)

	id := enqueueRating(t, f.queue, "exp-1")
	for i := 0; i < DefaultMaxRetries; i++ {
		require.NoError(t, f.queue.IncrementRetry(id))
	}

	result := f.engine.SyncNow(context.Background())
	assert.Equal(t, 0, delivered, "exhausted entries are not attempted")
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "permanently failed")

	count, err := f.queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBackoffIndexedByRetryCount(t *testing.T) {
	f := newFixture(t, func(_ context.Context, _ *queue.Request) error {
		return nil
	}, nil)

	fresh := enqueueRating(t, f.queue, "exp-0")
	_ = fresh

	once := enqueueRating(t, f.queue, "exp-1")
	require.NoError(t, f.queue.IncrementRetry(once))

	twice := enqueueRating(t, f.queue, "exp-2")
	require.NoError(t, f.queue.IncrementRetry(twice))
	require.NoError(t, f.queue.IncrementRetry(twice))

	result := f.engine.SyncNow(context.Background())
	assert.Equal(t, 3, result.Success)

	// Fresh entry waits nothing; retryCount 1 waits 1s; retryCount 2 waits 5s.
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, f.slept)
}

func TestBackoffCapsAtLastScheduleEntry(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.engine.maxRetries = 10

	assert.Equal(t, time.Second, f.engine.backoffFor(1))
	assert.Equal(t, 5*time.Second, f.engine.backoffFor(2))
	assert.Equal(t, 15*time.Second, f.engine.backoffFor(3))
	assert.Equal(t, 15*time.Second, f.engine.backoffFor(7))
}

func TestSingleFlightGuard(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	f := newFixture(t, func(_ context.Context, _ *queue.Request) error {
		close(started)
		<-release
		return nil
	}, nil)

	enqueueRating(t, f.queue, "exp-1")

	var wg sync.WaitGroup
	wg.Add(1)
	var first Result
	go func() {
		defer wg.Done()
		first = f.engine.SyncNow(context.Background())
	}()

	<-started
	second := f.engine.SyncNow(context.Background())
	assert.Equal(t, Result{}, second, "concurrent trigger must no-op")

	close(release)
	wg.Wait()
	assert.Equal(t, 1, first.Success)
}

func TestAnalyticsDrainedOnPass(t *testing.T) {
	var batch []analytics.Event
	f := newFixture(t,
		func(_ context.Context, _ *queue.Request) error { return nil },
		func(_ context.Context, events []analytics.Event) error {
			batch = events
			return nil
		},
	)

	require.NoError(t, f.buffer.Record("explanation_requested", nil))
	require.NoError(t, f.buffer.Record("rating_submitted", nil))

	f.engine.SyncNow(context.Background())
	assert.Len(t, batch, 2)

	count, err := f.buffer.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAnalyticsRetainedWhenDrainFails(t *testing.T) {
	f := newFixture(t,
		func(_ context.Context, _ *queue.Request) error { return nil },
		func(_ context.Context, _ []analytics.Event) error {
			return errors.New("backend unavailable")
		},
	)

	require.NoError(t, f.buffer.Record("explanation_requested", nil))

	result := f.engine.SyncNow(context.Background())
	assert.Equal(t, 0, result.Failed, "analytics failures never fail the pass")

	count, err := f.buffer.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatusSubscribersObserveSyncingThenTerminal(t *testing.T) {
	f := newFixture(t, func(_ context.Context, _ *queue.Request) error { return nil }, nil)

	enqueueRating(t, f.queue, "exp-1")

	var states []State
	f.engine.Subscribe(func(s Status) {
		states = append(states, s.State)
	})

	f.engine.SyncNow(context.Background())
	assert.Equal(t, []State{StateSyncing, StateSuccess}, states)
}

func TestPanickingStatusSubscriberIsolated(t *testing.T) {
	f := newFixture(t, func(_ context.Context, _ *queue.Request) error { return nil }, nil)

	var notified int
	f.engine.Subscribe(func(Status) { panic("subscriber bug") })
	f.engine.Subscribe(func(Status) { notified++ })

	assert.NotPanics(t, func() {
		f.engine.SyncNow(context.Background())
	})
	assert.Equal(t, 2, notified, "syncing and idle statuses both delivered")
}

func TestEmptyPassPublishesIdle(t *testing.T) {
	f := newFixture(t, func(_ context.Context, _ *queue.Request) error { return nil }, nil)

	result := f.engine.SyncNow(context.Background())
	assert.Equal(t, Result{}, result)
	assert.Equal(t, StateIdle, f.engine.Status().State)
}

func TestConnectivityRestorationTriggersPass(t *testing.T) {
	done := make(chan string, 1)
	f := newFixture(t, func(_ context.Context, req *queue.Request) error {
		done <- req.ID
		return nil
	}, nil)

	id := enqueueRating(t, f.queue, "exp-1")

	f.engine.Start(context.Background())
	defer f.engine.Stop()

	f.monitor.SetOnline(false)
	f.monitor.SetOnline(true)

	select {
	case delivered := <-done:
		assert.Equal(t, id, delivered)
	case <-time.After(2 * time.Second):
		t.Fatal("restoration never triggered a sync pass")
	}
}

func TestEndToEndRatingScenario(t *testing.T) {
	// Rating queued while offline, delivered after connectivity returns.
	var delivered *queue.Request
	f := newFixture(t, func(_ context.Context, req *queue.Request) error {
		delivered = req
		return nil
	}, nil)

	f.monitor.SetOnline(false)
	id := enqueueRating(t, f.queue, "exp-42")

	assert.Equal(t, Result{}, f.engine.SyncNow(context.Background()))

	f.monitor.SetOnline(true)
	result := f.engine.SyncNow(context.Background())
	assert.Equal(t, 1, result.Success)

	require.NotNil(t, delivered)
	assert.Equal(t, id, delivered.ID)
	payload, err := delivered.DecodeRating()
	require.NoError(t, err)
	assert.Equal(t, "exp-42", payload.ExplanationID)

	count, err := f.queue.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPermanentFailureErrorsNameTheRequest(t *testing.T) {
	f := newFixture(t, func(_ context.Context, _ *queue.Request) error {
		return errors.New("backend unavailable")
	}, nil)

	id := enqueueRating(t, f.queue, "exp-1")
	for i := 0; i < DefaultMaxRetries; i++ {
		require.NoError(t, f.queue.IncrementRetry(id))
	}

	result := f.engine.SyncNow(context.Background())
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], id)
	assert.Contains(t, result.Errors[0], fmt.Sprintf("%d attempts", DefaultMaxRetries))
}
