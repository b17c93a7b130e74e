package cache

import (
	"database/sql"
	"time"

	"github.com/mdnaeem95/stupify-extension/errors"
)

// Store handles persistence of cached explanations.
type Store struct {
	db *sql.DB
}

// NewStore creates a new explanation cache store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert replaces any existing entry with the same (question, tier) key and
// inserts the new entry at the newest insertion position.
func (s *Store) Upsert(entry *Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin upsert")
	}

	// Delete-then-insert rather than ON CONFLICT so the replacement entry
	// gets a fresh insertion sequence (moves to newest position).
	if _, err := tx.Exec(
		`DELETE FROM cached_explanations WHERE question = ? AND tier = ?`,
		entry.Question, entry.Tier,
	); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "delete existing cache entry")
	}

	if _, err := tx.Exec(
		`INSERT INTO cached_explanations (question, tier, answer, cached_at) VALUES (?, ?, ?, ?)`,
		entry.Question, entry.Tier, entry.Answer, entry.CachedAt,
	); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "insert cache entry")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit upsert")
	}

	return nil
}

// GetExact returns the live entry for the exact (question, tier) key, or nil.
func (s *Store) GetExact(question string, tier Tier, cutoff time.Time) (*Entry, error) {
	var entry Entry
	err := s.db.QueryRow(
		`SELECT question, tier, answer, cached_at
		 FROM cached_explanations
		 WHERE question = ? AND tier = ? AND cached_at > ?`,
		question, tier, cutoff,
	).Scan(&entry.Question, &entry.Tier, &entry.Answer, &entry.CachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get cache entry")
	}
	return &entry, nil
}

// ListLive returns all live entries for a tier, oldest insertion first.
func (s *Store) ListLive(tier Tier, cutoff time.Time) ([]*Entry, error) {
	rows, err := s.db.Query(
		`SELECT question, tier, answer, cached_at
		 FROM cached_explanations
		 WHERE tier = ? AND cached_at > ?
		 ORDER BY inserted_seq ASC`,
		tier, cutoff,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cache entries")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.Question, &entry.Tier, &entry.Answer, &entry.CachedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan cache entry")
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating cache entries")
	}

	return entries, nil
}

// Count returns the total number of physically present entries.
func (s *Store) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cached_explanations`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count cache entries")
	}
	return count, nil
}

// CountLive returns the number of live (non-expired) entries.
func (s *Store) CountLive(cutoff time.Time) (int, error) {
	var count int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM cached_explanations WHERE cached_at > ?`, cutoff,
	).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count live cache entries")
	}
	return count, nil
}

// EvictOldest removes the n oldest entries by insertion order.
func (s *Store) EvictOldest(n int) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM cached_explanations
		 WHERE inserted_seq IN (
		     SELECT inserted_seq FROM cached_explanations
		     ORDER BY inserted_seq ASC LIMIT ?
		 )`, n,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to evict cache entries")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// DeleteExpired removes entries whose age exceeds the expiry window.
func (s *Store) DeleteExpired(cutoff time.Time) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM cached_explanations WHERE cached_at <= ?`, cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired cache entries")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// Clear removes all entries.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM cached_explanations`); err != nil {
		return errors.Wrap(err, "failed to clear cache")
	}
	return nil
}
