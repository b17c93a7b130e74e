package queue

import (
	"database/sql"
	"sync"

	"go.uber.org/zap"

	"github.com/mdnaeem95/stupify-extension/errors"
)

// DefaultCapacity is the default bound on queued requests.
const DefaultCapacity = 50

// Queue is the durable, ordered log of deferred mutating operations. All
// read-modify-write sequences (capacity check then insert) run under the
// mutex so interleaved callers cannot lose updates.
//
// Overflow policy: when the queue is at capacity, enqueueing drops the
// oldest entry to make room. The newest request reflects the user's most
// recent intent and is the one worth keeping.
type Queue struct {
	store    *Store
	capacity int
	mu       sync.Mutex
	logger   *zap.SugaredLogger
}

// New creates a request queue over the given database.
func New(db *sql.DB, capacity int, logger *zap.SugaredLogger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		store:    NewStore(db),
		capacity: capacity,
		logger:   logger,
	}
}

// Enqueue durably adds a request and returns its id. Always succeeds locally
// while storage is available; at capacity the oldest entry is dropped first.
func (q *Queue) Enqueue(req *Request) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count, err := q.store.Count()
	if err != nil {
		return "", errors.Wrap(err, "failed to check queue capacity")
	}

	if count >= q.capacity {
		dropped, err := q.store.DeleteOldest(count - q.capacity + 1)
		if err != nil {
			return "", errors.Wrap(err, "failed to drop oldest queued requests")
		}
		q.logger.Warnw("Request queue at capacity, dropped oldest entries",
			"dropped", dropped,
			"capacity", q.capacity,
		)
	}

	if err := q.store.Insert(req); err != nil {
		err = errors.Wrap(err, "failed to enqueue request")
		err = errors.WithDetailf(err, "Request ID: %s", req.ID)
		err = errors.WithDetailf(err, "Kind: %s", req.Kind)
		err = errors.WithDetailf(err, "Endpoint: %s", req.Endpoint)
		return "", err
	}

	q.logger.Debugw("Request queued",
		"id", req.ID,
		"kind", req.Kind,
		"endpoint", req.Endpoint,
	)

	return req.ID, nil
}

// List returns all live entries, oldest first.
func (q *Queue) List() ([]*Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.List()
}

// Remove deletes a request by id. Idempotent: removing a non-existent id is
// a no-op, not an error.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.Delete(id)
}

// IncrementRetry bumps the retry count for a request. Idempotent no-op if
// the id is absent.
func (q *Queue) IncrementRetry(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.IncrementRetry(id)
}

// Count returns the number of queued requests.
func (q *Queue) Count() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.Count()
}

// Clear removes all queued requests.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.Clear()
}
