// internal/adapters/out/local/device_key_store.go
package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DeviceKeyStore persists one anonymous actor key per device in a local SQLite file.
type DeviceKeyStore struct {
	db *sqlx.DB
}

type deviceKeyRow struct {
	DeviceID  string `db:"device_id"`
	ActorKey  string `db:"actor_key"`
	UpdatedAt string `db:"updated_at"`
}

// OpenDeviceKeyStore opens (or creates) the SQLite database at dsn and ensures the schema.
// dsn may be a file path or ":memory:".
func OpenDeviceKeyStore(dsn string) (*DeviceKeyStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("local.device_key_store: dsn is empty")
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("local.device_key_store: open: %w", err)
	}
	// one connection: ":memory:" databases are per-connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("local.device_key_store: ping: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DeviceKeyStore{db: db}, nil
}

func ensureSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS device_keys(
  device_id TEXT PRIMARY KEY,
  actor_key TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("local.device_key_store: schema: %w", err)
	}
	return nil
}

func (s *DeviceKeyStore) Load(ctx context.Context, deviceID string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("local.device_key_store: db is nil")
	}
	var row deviceKeyRow
	err := s.db.GetContext(ctx, &row,
		`SELECT device_id, actor_key, updated_at FROM device_keys WHERE device_id = ?`,
		strings.TrimSpace(deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.ActorKey, true, nil
}

func (s *DeviceKeyStore) Save(ctx context.Context, deviceID, key string) error {
	if s == nil || s.db == nil {
		return errors.New("local.device_key_store: db is nil")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO device_keys(device_id, actor_key, updated_at) VALUES(?, ?, ?)
ON CONFLICT(device_id) DO UPDATE SET actor_key = excluded.actor_key, updated_at = excluded.updated_at`,
		strings.TrimSpace(deviceID), strings.TrimSpace(key), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *DeviceKeyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
