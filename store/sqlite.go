package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/phanxgames/diorama"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS scenes (
    name       TEXT PRIMARY KEY,
    revision   INTEGER NOT NULL,
    body       BLOB NOT NULL,
    updated_at INTEGER NOT NULL      -- UnixNano
);

CREATE TABLE IF NOT EXISTS events (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    time    INTEGER NOT NULL,        -- UnixNano
    kind    TEXT NOT NULL,
    payload TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
`

// SQLiteStore keeps scenes and the event log in a single database file.
type SQLiteStore struct {
	*Assets
	scenes

	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath, assetsDir string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	dsn := dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := checkSchemaVersion(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{Assets: NewAssets(assetsDir), db: db}
	s.scenes.init(sqliteBackend{db: db})
	return s, nil
}

func checkSchemaVersion(db *sql.DB) error {
	var v int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", sqliteSchemaVersion); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case v > sqliteSchemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported %d", v, sqliteSchemaVersion)
	}
	return nil
}

type sqliteBackend struct {
	db *sql.DB
}

func (b sqliteBackend) get(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := b.db.QueryRowContext(ctx, "SELECT body FROM scenes WHERE name = ?", name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%q: %w", name, ErrSceneNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scene: %w", err)
	}
	return body, nil
}

func (b sqliteBackend) put(ctx context.Context, name string, data []byte, revision int) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO scenes (name, revision, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET revision = excluded.revision, body = excluded.body, updated_at = excluded.updated_at`,
		name, revision, data, time.Now().UnixNano())
	return err
}

// EmitEvent implements diorama.Port.
func (s *SQLiteStore) EmitEvent(ctx context.Context, kind string, payload map[string]any) error {
	var text sql.NullString
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		text = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO events (time, kind, payload) VALUES (?, ?, ?)",
		time.Now().UnixNano(), kind, text)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// SceneNames lists stored scenes by name.
func (s *SQLiteStore) SceneNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM scenes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// EventCount returns the number of logged events of kind.
func (s *SQLiteStore) EventCount(ctx context.Context, kind string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE kind = ?", kind).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ diorama.Port = (*SQLiteStore)(nil)
