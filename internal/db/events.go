// CLAUDE:SUMMARY Tracking event store — append immutable health events, query per domain/time window ordered newest first
package db

import (
	"encoding/json"
	"fmt"
	"time"
)

// TrackingEvent is a single time-stamped health data point. Events are
// immutable once written; the insight pipeline consumes them read-only.
type TrackingEvent struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	DomainID  string         `json:"domain_id"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// CreateEventInput describes a new tracking event.
type CreateEventInput struct {
	UserID    string
	DomainID  string
	Payload   map[string]any
	Timestamp time.Time
}

// InsertEvent appends a tracking event. Timestamp defaults to now.
func (db *DB) InsertEvent(in CreateEventInput) (*TrackingEvent, error) {
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}
	if in.Payload == nil {
		in.Payload = map[string]any{}
	}
	payload, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	ev := &TrackingEvent{
		ID:        "evt_" + NewID(),
		UserID:    in.UserID,
		DomainID:  in.DomainID,
		Payload:   in.Payload,
		Timestamp: in.Timestamp,
	}
	_, err = db.Exec(`INSERT INTO tracking_events (id, user_id, domain_id, payload, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.DomainID, string(payload), ev.Timestamp.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	return ev, nil
}

// QueryEvents returns a user's events for one domain within [since, now],
// ordered by timestamp descending. A zero since means unbounded.
func (db *DB) QueryEvents(userID, domainID string, since time.Time) ([]TrackingEvent, error) {
	query := `SELECT id, user_id, domain_id, payload, timestamp
		FROM tracking_events WHERE user_id = ? AND domain_id = ?`
	args := []any{userID, domainID}
	if !since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []TrackingEvent
	for rows.Next() {
		var ev TrackingEvent
		var payload, ts string
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.DomainID, &payload, &ts); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			ev.Payload = map[string]any{}
		}
		ev.Timestamp = parseTime(ts)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountEvents returns the number of events a user has across all domains
// within [since, now]. A zero since means unbounded.
func (db *DB) CountEvents(userID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM tracking_events WHERE user_id = ?`
	args := []any{userID}
	if !since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	var n int
	err := db.QueryRow(query, args...).Scan(&n)
	return n, err
}

// parseTime handles both RFC3339 and SQLite's default datetime format.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}
