package gateway

import (
	"sync"
	"time"

	"github.com/mdnaeem95/stupify-extension/errors"
)

// DefaultUsageLimit is the default number of fresh explanation requests
// allowed per minute. Cache hits are exempt.
const DefaultUsageLimit = 10

// usageLimiter enforces max fresh explanation requests per minute using a
// sliding window over recorded call times.
type usageLimiter struct {
	maxPerMinute int
	window       time.Duration
	mu           sync.Mutex
	callTimes    []time.Time
	timeNow      func() time.Time // injectable for testing
}

func newUsageLimiter(maxPerMinute int) *usageLimiter {
	return newUsageLimiterWithClock(maxPerMinute, time.Now)
}

func newUsageLimiterWithClock(maxPerMinute int, timeNow func() time.Time) *usageLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = DefaultUsageLimit
	}
	return &usageLimiter{
		maxPerMinute: maxPerMinute,
		window:       time.Minute,
		callTimes:    make([]time.Time, 0, maxPerMinute),
		timeNow:      timeNow,
	}
}

// allow records a call if capacity remains in the window, or returns
// ErrRateLimited.
func (l *usageLimiter) allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNow()
	l.removeExpired(now)

	if len(l.callTimes) >= l.maxPerMinute {
		err := errors.Wrapf(errors.ErrRateLimited, "%d explanation requests in the last minute", len(l.callTimes))
		err = errors.WithDetailf(err, "Limit: %d per minute", l.maxPerMinute)
		err = errors.WithHint(err, "Wait a moment before asking again, or re-ask a recent question to hit the cache")
		return err
	}

	l.callTimes = append(l.callTimes, now)
	return nil
}

// removeExpired drops call timestamps outside the sliding window. Timestamps
// are ordered, so expired entries are a prefix. Must be called with lock held.
func (l *usageLimiter) removeExpired(now time.Time) {
	cutoff := now.Add(-l.window)

	expired := 0
	for _, t := range l.callTimes {
		if !t.After(cutoff) {
			expired++
		} else {
			break
		}
	}
	l.callTimes = l.callTimes[expired:]
}

// remaining returns the unused capacity in the current window.
func (l *usageLimiter) remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.removeExpired(l.timeNow())
	r := l.maxPerMinute - len(l.callTimes)
	if r < 0 {
		r = 0
	}
	return r
}

// setLimit adjusts the per-minute cap, e.g. after a config reload.
func (l *usageLimiter) setLimit(maxPerMinute int) {
	if maxPerMinute <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxPerMinute = maxPerMinute
}
