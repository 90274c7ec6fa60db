package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/comfortablynumb/quizmock/internal/tracker"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens dsn, which may be a file path or ":memory:"
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		log_id INTEGER,
		timestamp INTEGER NOT NULL,
		method TEXT,
		url TEXT,
		mocked INTEGER,
		service TEXT,
		status INTEGER,
		outcome TEXT
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// AppendRequests adds entries in order and trims the table to the newest MaxRequests
func (s *SQLiteStore) AppendRequests(ctx context.Context, entries []tracker.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO requests (log_id, timestamp, method, url, mocked, service, status, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Timestamp.UnixMilli(), e.Method, e.URL, e.Mocked, e.Service, e.Status, e.Outcome); err != nil {
			return fmt.Errorf("failed to save request %d: %w", e.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM requests WHERE id NOT IN (SELECT id FROM requests ORDER BY id DESC LIMIT ?)
	`, MaxRequests); err != nil {
		return fmt.Errorf("failed to trim requests: %w", err)
	}

	return tx.Commit()
}

// Requests returns the persisted entries, oldest first
func (s *SQLiteStore) Requests(ctx context.Context) ([]tracker.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT log_id, timestamp, method, url, mocked, service, status, outcome
		FROM requests
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load requests: %w", err)
	}
	defer rows.Close()

	var entries []tracker.Entry
	for rows.Next() {
		var e tracker.Entry
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Method, &e.URL, &e.Mocked, &e.Service, &e.Status, &e.Outcome); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) ClearRequests(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM requests"); err != nil {
		return fmt.Errorf("failed to clear requests: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
