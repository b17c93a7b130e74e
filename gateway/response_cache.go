package gateway

import (
	"database/sql"
	"time"

	"github.com/mdnaeem95/stupify-extension/errors"
)

// DefaultResponseTTL is how long a cached endpoint response stays usable.
const DefaultResponseTTL = time.Hour

// ResponseCache is the endpoint-keyed cache of read responses, used as the
// offline fallback for idempotent calls. Separate collection from the
// explanation cache, with a much shorter TTL.
type ResponseCache struct {
	db  *sql.DB
	ttl time.Duration
}

// NewResponseCache creates a response cache over the given database.
func NewResponseCache(db *sql.DB, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultResponseTTL
	}
	return &ResponseCache{db: db, ttl: ttl}
}

// Put stores the latest response body for an endpoint, replacing any prior
// one.
func (c *ResponseCache) Put(endpoint string, body []byte) error {
	_, err := c.db.Exec(
		`INSERT INTO cached_responses (endpoint, body, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET body = excluded.body, cached_at = excluded.cached_at`,
		endpoint, body, time.Now(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to cache response")
	}
	return nil
}

// Get returns the cached body for an endpoint if present and fresh, or nil.
func (c *ResponseCache) Get(endpoint string) ([]byte, error) {
	var body []byte
	var cachedAt time.Time
	err := c.db.QueryRow(
		`SELECT body, cached_at FROM cached_responses WHERE endpoint = ?`, endpoint,
	).Scan(&body, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read cached response")
	}

	if time.Since(cachedAt) > c.ttl {
		return nil, nil
	}
	return body, nil
}

// PruneExpired removes responses older than the TTL.
func (c *ResponseCache) PruneExpired() (int, error) {
	result, err := c.db.Exec(
		`DELETE FROM cached_responses WHERE cached_at < ?`, time.Now().Add(-c.ttl),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune cached responses")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// Clear removes all cached responses.
func (c *ResponseCache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM cached_responses`); err != nil {
		return errors.Wrap(err, "failed to clear cached responses")
	}
	return nil
}
