// Package connectivity tracks whether the backend is reachable, merging
// passive browser signals with an active reachability probe.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mdnaeem95/stupify-extension/internal/httpclient"
)

// DefaultProbeInterval is how often the active probe runs.
const DefaultProbeInterval = 30 * time.Second

// DefaultProbeTimeout bounds a single probe request.
const DefaultProbeTimeout = 5 * time.Second

// Options configures a Monitor.
type Options struct {
	// ProbeURL is the health endpoint the active probe HEADs. Empty disables
	// the active probe; the monitor then relies on passive signals only.
	ProbeURL      string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	// Client overrides the probe HTTP client. Tests use this to point the
	// probe at a local server.
	Client *httpclient.Client
}

// Monitor derives a single debounced offline boolean from two inputs: passive
// online/offline events relayed from the browser via SetOnline, and a periodic
// HEAD probe to a health endpoint. Either signal can flip the state; the most
// recent observation wins. Subscribers are notified only when the derived
// value actually flips.
type Monitor struct {
	mu        sync.Mutex
	offline   bool
	subs      map[int]func(offline bool)
	nextSubID int

	probeURL      string
	probeInterval time.Duration
	probeTimeout  time.Duration
	client        *httpclient.Client
	logger        *zap.SugaredLogger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a connectivity monitor. The monitor starts in the online
// state; the first probe or passive signal corrects it if that is wrong.
func NewMonitor(opts Options, logger *zap.SugaredLogger) *Monitor {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = DefaultProbeInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	client := opts.Client
	if client == nil {
		client = httpclient.New(opts.ProbeTimeout)
	}
	return &Monitor{
		subs:          make(map[int]func(offline bool)),
		probeURL:      opts.ProbeURL,
		probeInterval: opts.ProbeInterval,
		probeTimeout:  opts.ProbeTimeout,
		client:        client,
		logger:        logger,
	}
}

// IsOffline returns the current derived connectivity state.
func (m *Monitor) IsOffline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offline
}

// SetOnline feeds a passive connectivity signal (browser online/offline
// events relayed from the extension).
func (m *Monitor) SetOnline(online bool) {
	m.publish(!online)
}

// Subscribe registers a callback invoked on every state flip. Returns an
// unsubscribe function. Callbacks run synchronously on the goroutine that
// observed the flip; a panicking callback does not prevent the others from
// being notified.
func (m *Monitor) Subscribe(fn func(offline bool)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Start launches the active probe loop. No-op if no probe URL is configured.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.probeURL == "" || m.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	done := make(chan struct{})
	m.done = done

	go m.probeLoop(ctx, done)
}

// Stop halts the active probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) probeLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Probe once immediately so startup state doesn't wait a full interval.
	m.publish(!m.probe(ctx))

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.publish(!m.probe(ctx))
		}
	}
}

// probe HEADs the health endpoint. Any HTTP response counts as reachable,
// even an error status: the network path is up, which is all this signal
// tracks.
func (m *Monitor) probe(ctx context.Context) (online bool) {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.logger.Warnw("Invalid probe URL", "url", m.probeURL, "error", err)
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// publish updates the derived state and, on a flip, notifies subscribers.
func (m *Monitor) publish(offline bool) {
	m.mu.Lock()
	if m.offline == offline {
		m.mu.Unlock()
		return
	}
	m.offline = offline

	subs := make([]func(offline bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if offline {
		m.logger.Infow("Connectivity lost")
	} else {
		m.logger.Infow("Connectivity restored")
	}

	for _, fn := range subs {
		m.notify(fn, offline)
	}
}

func (m *Monitor) notify(fn func(offline bool), offline bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorw("Connectivity subscriber panicked", "panic", r)
		}
	}()
	fn(offline)
}
