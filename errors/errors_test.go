package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueuedKindSurvivesWrapping(t *testing.T) {
	err := Wrap(ErrQueued, "rating submission deferred")
	err = Wrapf(err, "gateway request to %s", "/api/ratings")

	assert.True(t, IsQueued(err))
	assert.False(t, IsUnauthorized(err))
}

func TestOutcomeKindsAreDistinct(t *testing.T) {
	assert.False(t, Is(ErrQueued, ErrNoCacheAvailable))
	assert.False(t, Is(ErrOfflineNoCache, ErrNoCacheAvailable))
	assert.False(t, Is(ErrUnauthorized, ErrTimeout))
}

func TestWrapQueuedPreservesKindAndContext(t *testing.T) {
	cause := New("dial tcp: connection refused")
	err := WrapQueued(cause, "submit rating")

	assert.True(t, IsQueued(err))
	assert.Contains(t, err.Error(), "submit rating")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindHelpersHandleNil(t *testing.T) {
	assert.False(t, IsQueued(nil))
	assert.False(t, IsNoCacheAvailable(nil))
	assert.False(t, IsOfflineNoCache(nil))
	assert.False(t, IsUnauthorized(nil))
	assert.False(t, IsRateLimited(nil))
}
