package queue

import (
	"database/sql"

	"github.com/mdnaeem95/stupify-extension/errors"
)

// Store handles persistence of queued requests.
type Store struct {
	db *sql.DB
}

// NewStore creates a new queued request store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert adds a request to the queue.
func (s *Store) Insert(req *Request) error {
	payload := sql.NullString{String: string(req.Payload), Valid: len(req.Payload) > 0}

	_, err := s.db.Exec(
		`INSERT INTO queued_requests (id, kind, endpoint, method, payload, retry_count, enqueued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Kind, req.Endpoint, req.Method, payload, req.RetryCount, req.EnqueuedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert queued request")
	}
	return nil
}

// List returns all queued requests, oldest first.
func (s *Store) List() ([]*Request, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, endpoint, method, payload, retry_count, enqueued_at
		 FROM queued_requests
		 ORDER BY enqueued_at ASC, rowid ASC`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queued requests")
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		var req Request
		var payload sql.NullString
		if err := rows.Scan(&req.ID, &req.Kind, &req.Endpoint, &req.Method, &payload, &req.RetryCount, &req.EnqueuedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan queued request")
		}
		if payload.Valid {
			req.Payload = []byte(payload.String)
		}
		requests = append(requests, &req)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating queued requests")
	}

	return requests, nil
}

// Delete removes a request by id. Deleting a non-existent id is a no-op.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM queued_requests WHERE id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to delete queued request")
	}
	return nil
}

// IncrementRetry increments retry_count for a request. No-op if id is absent.
func (s *Store) IncrementRetry(id string) error {
	if _, err := s.db.Exec(
		`UPDATE queued_requests SET retry_count = retry_count + 1 WHERE id = ?`, id,
	); err != nil {
		return errors.Wrap(err, "failed to increment retry count")
	}
	return nil
}

// Count returns the number of queued requests.
func (s *Store) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM queued_requests`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count queued requests")
	}
	return count, nil
}

// DeleteOldest removes the n oldest requests by enqueue time.
func (s *Store) DeleteOldest(n int) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM queued_requests
		 WHERE id IN (
		     SELECT id FROM queued_requests
		     ORDER BY enqueued_at ASC, rowid ASC LIMIT ?
		 )`, n,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete oldest queued requests")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// Clear removes all queued requests.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM queued_requests`); err != nil {
		return errors.Wrap(err, "failed to clear queue")
	}
	return nil
}
