// Package index provides SQLite-backed note indexing with optional FTS5
// full-text search, tag queries, and a rebuild protocol for stale indexes.
package index

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	path       TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	body       TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS links (
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	type   TEXT NOT NULL DEFAULT 'inline',
	UNIQUE(source, target)
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn      *sql.DB
	ready     atomic.Bool
	rebuildMu sync.Mutex
}

// Open opens (or creates) the SQLite database and applies the schema.
//
// A freshly created database is ready immediately. An existing database
// whose stored generation does not match schemaGeneration opens in the
// not-ready state: search and tag queries fail with ErrIndexNotReady
// until Rebuild has run.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	fresh, err := isFresh(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: inspect schema: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}

	db := &DB{conn: conn}
	if fresh {
		// Nothing to migrate; stamp the generation and serve immediately.
		if err := db.stampGeneration(); err != nil {
			conn.Close()
			return nil, err
		}
		db.ready.Store(true)
	} else {
		db.ready.Store(db.generationCurrent())
	}
	return db, nil
}

// isFresh reports whether the database has no notes table yet.
func isFresh(conn *sql.DB) (bool, error) {
	var n int
	err := conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'notes'`).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
