// Package analytics buffers usage events recorded while offline until the
// sync engine can flush them in bulk.
package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mdnaeem95/stupify-extension/errors"
)

// Event is a single usage event (e.g. "explanation_requested",
// "rating_submitted").
type Event struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// Sender delivers a batch of events to the backend.
type Sender func(ctx context.Context, events []Event) error

// Buffer is a durable store of analytics events awaiting delivery. Flushing
// is fire-and-forget from the caller's perspective: clear on success, leave
// everything in place to retry next pass on failure.
type Buffer struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.SugaredLogger
}

// NewBuffer creates an analytics buffer over the given database.
func NewBuffer(db *sql.DB, logger *zap.SugaredLogger) *Buffer {
	return &Buffer{db: db, logger: logger}
}

// Record durably stores an event for later delivery.
func (b *Buffer) Record(name string, properties map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var props sql.NullString
	if len(properties) > 0 {
		data, err := json.Marshal(properties)
		if err != nil {
			return errors.Wrap(err, "failed to marshal event properties")
		}
		props = sql.NullString{String: string(data), Valid: true}
	}

	if _, err := b.db.Exec(
		`INSERT INTO analytics_events (id, name, properties, recorded_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), name, props, time.Now(),
	); err != nil {
		return errors.Wrap(err, "failed to record analytics event")
	}

	return nil
}

// Pending returns all buffered events, oldest first.
func (b *Buffer) Pending() ([]Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.pendingLocked()
}

func (b *Buffer) pendingLocked() ([]Event, error) {
	rows, err := b.db.Query(
		`SELECT id, name, properties, recorded_at FROM analytics_events ORDER BY recorded_at ASC, rowid ASC`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list analytics events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var props sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Name, &props, &ev.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan analytics event")
		}
		if props.Valid {
			if err := json.Unmarshal([]byte(props.String), &ev.Properties); err != nil {
				return nil, errors.Wrap(err, "failed to decode event properties")
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating analytics events")
	}

	return events, nil
}

// Count returns the number of buffered events.
func (b *Buffer) Count() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var count int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM analytics_events`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count analytics events")
	}
	return count, nil
}

// Flush sends all buffered events in one bulk call. On success the buffer is
// cleared; on failure events stay put for the next pass. Returns the number
// of events delivered.
func (b *Buffer) Flush(ctx context.Context, send Sender) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	events, err := b.pendingLocked()
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := send(ctx, events); err != nil {
		b.logger.Debugw("Analytics flush failed, retrying next pass",
			"pending", len(events),
			"error", err,
		)
		return 0, errors.Wrap(err, "failed to deliver analytics batch")
	}

	if _, err := b.db.Exec(`DELETE FROM analytics_events`); err != nil {
		return len(events), errors.Wrap(err, "failed to clear delivered analytics events")
	}

	b.logger.Debugw("Analytics events delivered", "count", len(events))
	return len(events), nil
}
