package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mdnaeem95/stupify-extension/internal/httpclient"
)

func newTestMonitor(opts Options) *Monitor {
	return NewMonitor(opts, zap.NewNop().Sugar())
}

func TestStartsOnline(t *testing.T) {
	m := newTestMonitor(Options{})
	assert.False(t, m.IsOffline())
}

func TestPassiveSignalFlipsState(t *testing.T) {
	m := newTestMonitor(Options{})

	m.SetOnline(false)
	assert.True(t, m.IsOffline())

	m.SetOnline(true)
	assert.False(t, m.IsOffline())
}

func TestSubscriberNotifiedOnlyOnFlips(t *testing.T) {
	m := newTestMonitor(Options{})

	var flips []bool
	m.Subscribe(func(offline bool) {
		flips = append(flips, offline)
	})

	m.SetOnline(true)  // already online, no flip
	m.SetOnline(false) // flip to offline
	m.SetOnline(false) // redundant, no flip
	m.SetOnline(true)  // flip to online

	assert.Equal(t, []bool{true, false}, flips)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	m := newTestMonitor(Options{})

	var count int
	unsubscribe := m.Subscribe(func(offline bool) {
		count++
	})

	m.SetOnline(false)
	assert.Equal(t, 1, count)

	unsubscribe()
	m.SetOnline(true)
	assert.Equal(t, 1, count)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	m := newTestMonitor(Options{})

	var notified int32
	m.Subscribe(func(offline bool) {
		panic("subscriber bug")
	})
	m.Subscribe(func(offline bool) {
		atomic.AddInt32(&notified, 1)
	})
	m.Subscribe(func(offline bool) {
		atomic.AddInt32(&notified, 1)
	})

	assert.NotPanics(t, func() {
		m.SetOnline(false)
	})
	assert.Equal(t, int32(2), atomic.LoadInt32(&notified))
}

func TestActiveProbeDetectsReachability(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			// Drop the connection to simulate an unreachable host.
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
				}
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newTestMonitor(Options{
		ProbeURL:      srv.URL + "/health",
		ProbeInterval: 10 * time.Millisecond,
		ProbeTimeout:  time.Second,
		Client:        httpclient.WrapClient(srv.Client()),
	})

	flipped := make(chan bool, 16)
	m.Subscribe(func(offline bool) {
		flipped <- offline
	})

	m.Start(context.Background())
	defer m.Stop()

	healthy.Store(false)
	select {
	case offline := <-flipped:
		assert.True(t, offline)
	case <-time.After(2 * time.Second):
		t.Fatal("probe never detected lost connectivity")
	}

	healthy.Store(true)
	select {
	case offline := <-flipped:
		assert.False(t, offline)
	case <-time.After(2 * time.Second):
		t.Fatal("probe never detected restored connectivity")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	m := newTestMonitor(Options{ProbeURL: "https://example.com/health"})
	m.Start(context.Background())
	m.Stop()
	m.Stop()
}
