package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const schemaVersion = "1"

// DB wraps the SQLite database holding the creator's caches.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates a SQLite database in the given directory
func Open(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, "avp.db")

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for concurrent readers while a synthesis result is written
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create meta table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS speech_cache (
			key         TEXT PRIMARY KEY,
			provider    TEXT NOT NULL,
			mime_type   TEXT NOT NULL,
			audio       BLOB NOT NULL,
			text_chars  INTEGER DEFAULT 0,
			hits        INTEGER DEFAULT 0,
			created_at  INTEGER NOT NULL,
			last_used   INTEGER NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create speech cache table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_speech_last_used ON speech_cache(last_used)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create speech cache index: %w", err)
	}

	if _, err := db.Exec(`INSERT OR REPLACE INTO _meta (key, value) VALUES ('schema_version', ?)`, schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("write schema version: %w", err)
	}

	return &DB{db: db, path: dbPath}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.path
}

// Meta reads a value from the metadata table.
func (d *DB) Meta(key string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var v string
	err := d.db.QueryRow(`SELECT value FROM _meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
