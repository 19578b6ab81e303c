package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists paired devices and their credentials.
type Repository interface {
	// List returns every persisted device record.
	List(ctx context.Context) ([]Record, error)

	// Save inserts or replaces a device record.
	Save(ctx context.Context, rec Record) error

	// Delete removes a device and its saved entities.
	// Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

// EntityRepository persists the saved-entity bindings reported by each TV.
type EntityRepository interface {
	ListEntities(ctx context.Context, deviceID string) ([]SavedEntity, error)

	// ReplaceEntities swaps the full set of bindings for a device.
	ReplaceEntities(ctx context.Context, deviceID string, entities []SavedEntity) error
}

// SQLiteRepository implements Repository and EntityRepository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List returns every persisted device record ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, host, port, token, max_quickbars, grid_layout,
			app_version, last_seen, created_at, updated_at
		FROM devices
		ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec        Record
			gridLayout int
			lastSeen   sql.NullString
			created    string
			updated    string
		)
		if err := rows.Scan(
			&rec.Device.ID, &rec.Device.Name, &rec.Device.Host, &rec.Device.Port, &rec.Token,
			&rec.Device.Capabilities.MaxQuickBars, &gridLayout,
			&rec.Device.AppVersion, &lastSeen, &created, &updated,
		); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		rec.Device.Capabilities.GridLayout = gridLayout != 0
		rec.Device.State = StateDisconnected
		rec.Device.CreatedAt = parseTime(created)
		rec.Device.UpdatedAt = parseTime(updated)
		if lastSeen.Valid {
			t := parseTime(lastSeen.String)
			rec.Device.LastSeen = &t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return records, nil
}

// Save inserts or replaces a device record.
func (r *SQLiteRepository) Save(ctx context.Context, rec Record) error {
	d := rec.Device
	var lastSeen any
	if d.LastSeen != nil {
		lastSeen = formatTime(*d.LastSeen)
	}
	gridLayout := 0
	if d.Capabilities.GridLayout {
		gridLayout = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, host, port, token, max_quickbars, grid_layout,
			app_version, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			host = excluded.host,
			port = excluded.port,
			token = excluded.token,
			max_quickbars = excluded.max_quickbars,
			grid_layout = excluded.grid_layout,
			app_version = excluded.app_version,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at`,
		d.ID, d.Name, d.Host, d.Port, rec.Token, d.Capabilities.MaxQuickBars, gridLayout,
		d.AppVersion, lastSeen, formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving device %s: %w", d.ID, err)
	}
	return nil
}

// Delete removes a device. Saved entities go with it via ON DELETE CASCADE.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	return nil
}

// ListEntities returns the saved entities of one device ordered by entity id.
func (r *SQLiteRepository) ListEntities(ctx context.Context, deviceID string) ([]SavedEntity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, entity_id, alias, friendly_name
		FROM saved_entities
		WHERE device_id = ?
		ORDER BY entity_id`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying saved entities: %w", err)
	}
	defer rows.Close()

	var entities []SavedEntity
	for rows.Next() {
		var e SavedEntity
		if err := rows.Scan(&e.DeviceID, &e.EntityID, &e.Alias, &e.FriendlyName); err != nil {
			return nil, fmt.Errorf("scanning saved entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// ReplaceEntities swaps the saved entities of a device in one transaction.
func (r *SQLiteRepository) ReplaceEntities(ctx context.Context, deviceID string, entities []SavedEntity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM saved_entities WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("clearing saved entities: %w", err)
	}

	now := formatTime(time.Now())
	for _, e := range entities {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO saved_entities (device_id, entity_id, alias, friendly_name, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(device_id, entity_id) DO UPDATE SET
				alias = excluded.alias,
				friendly_name = excluded.friendly_name,
				updated_at = excluded.updated_at`,
			deviceID, e.EntityID, e.Alias, e.FriendlyName, now,
		); err != nil {
			return fmt.Errorf("inserting saved entity %s: %w", e.EntityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing saved entities: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // Written by formatTime
	return t
}
