package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryan-buckman/feeder/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
	snapshots
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path. A file that exists but
// is not a readable database is an error.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{
		conn: conn,
		snapshots: snapshots{conn: conn, q: queries{
			insertCategory: "INSERT INTO categories (name, position) VALUES (?, ?)",
			insertChannel:  "INSERT INTO channels (category, name, url, position) VALUES (?, ?, ?, ?)",
			touchMeta:      "INSERT INTO snapshot_meta (id, saved_at) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET saved_at = excluded.saved_at",
		}},
	}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS categories (
		name TEXT PRIMARY KEY,
		position INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS channels (
		category TEXT NOT NULL REFERENCES categories(name) ON DELETE CASCADE,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (category, name)
	);
	CREATE TABLE IF NOT EXISTS snapshot_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		saved_at DATETIME NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// LoadSnapshot returns the saved registry state, or ErrNoSnapshot.
func (db *DB) LoadSnapshot(ctx context.Context) (*model.Snapshot, error) {
	return db.load(ctx)
}

// SaveSnapshot replaces the saved registry state.
func (db *DB) SaveSnapshot(ctx context.Context, s *model.Snapshot) error {
	return db.save(ctx, s)
}
