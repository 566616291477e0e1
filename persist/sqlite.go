package persist

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const slotSchema = `
CREATE TABLE IF NOT EXISTS session_slot (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	payload    BLOB    NOT NULL,
	updated_at INTEGER NOT NULL
);`

// MemoryPath opens a throwaway database that lives as long as the slot.
const MemoryPath = ":memory:"

var _ Slot = (*SQLiteSlot)(nil)

// SQLiteSlot keeps the payload in a single-row SQLite table.
type SQLiteSlot struct {
	db      *sql.DB
	nowTime func() time.Time
}

// OpenSQLiteSlot opens (creating if needed) the slot database at path.
func OpenSQLiteSlot(path string) (*SQLiteSlot, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("[OpenSQLiteSlot] path is required")
	}
	dsn := path
	if path != MemoryPath {
		dsn = filepath.Clean(path) + "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[OpenSQLiteSlot] sql.Open")
	}
	// one connection so ":memory:" keeps a single database
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[OpenSQLiteSlot] ping")
	}
	if _, err := db.Exec(slotSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[OpenSQLiteSlot] create schema")
	}
	return &SQLiteSlot{db: db, nowTime: time.Now}, nil
}

func (s *SQLiteSlot) Load(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM session_slot WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session slot: %w", err)
	}
	return payload, nil
}

func (s *SQLiteSlot) Save(ctx context.Context, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_slot (id, payload, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, payload, s.nowTime().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save session slot: %w", err)
	}
	return nil
}

func (s *SQLiteSlot) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_slot`); err != nil {
		return fmt.Errorf("clear session slot: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteSlot) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
