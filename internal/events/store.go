package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteActionStore appends action events to the action_events table.
type SQLiteActionStore struct {
	db *sql.DB
}

// NewSQLiteActionStore creates a store over an open, migrated database.
func NewSQLiteActionStore(db *sql.DB) *SQLiteActionStore {
	return &SQLiteActionStore{db: db}
}

// SaveAction implements ActionStore.
func (s *SQLiteActionStore) SaveAction(ctx context.Context, a ActionEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_events (id, device_id, action_id, cid, label, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), a.DeviceID, a.ActionID, a.CID, a.Label, a.ReceivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting action event: %w", err)
	}
	return nil
}

// Recent returns up to limit action events for a device, newest first.
// An empty deviceID returns events from every device.
func (s *SQLiteActionStore) Recent(ctx context.Context, deviceID string, limit int) ([]ActionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, action_id, cid, label, received_at
		FROM action_events
		WHERE ? = '' OR device_id = ?
		ORDER BY received_at DESC
		LIMIT ?`, deviceID, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying action events: %w", err)
	}
	defer rows.Close()

	var out []ActionEvent
	for rows.Next() {
		var (
			a        ActionEvent
			received string
		)
		if err := rows.Scan(&a.DeviceID, &a.ActionID, &a.CID, &a.Label, &received); err != nil {
			return nil, fmt.Errorf("scanning action event: %w", err)
		}
		a.ReceivedAt, _ = time.Parse(time.RFC3339Nano, received) //nolint:errcheck // Written by SaveAction
		out = append(out, a)
	}
	return out, rows.Err()
}
