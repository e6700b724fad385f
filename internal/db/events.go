package db

import (
	"time"
)

// Event is one journaled install/progress record.
type Event struct {
	ID        int64     `json:"id"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// InsertEvent appends an event to the journal.
func InsertEvent(stage, status, message string) error {
	if db == nil {
		return nil
	}
	_, err := db.Exec(
		`INSERT INTO events (stage, status, message) VALUES (?, ?, ?)`,
		stage, status, message,
	)
	return err
}

// RecentEvents returns up to limit events, newest first.
func RecentEvents(limit int) ([]Event, error) {
	if db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(
		`SELECT id, stage, status, message, created_at
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Stage, &e.Status, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
