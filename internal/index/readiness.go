package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/storage"
)

// schemaGeneration identifies the index layout this build expects.
// Bump it whenever the indexed shape changes (columns, FTS schema,
// tokenizer) so that existing databases are rebuilt instead of served
// with stale derived data.
const schemaGeneration = 2

const generationKey = "generation"

// Ready reports whether search and tag queries can be served.
func (db *DB) Ready() bool {
	return db.ready.Load()
}

// guardReady returns ErrIndexNotReady (wrapped with the operation name)
// when the index cannot serve queries yet.
func (db *DB) guardReady(op string) error {
	if !db.ready.Load() {
		return fmt.Errorf("index: %s: %w", op, apperr.ErrIndexNotReady)
	}
	return nil
}

func (db *DB) generationCurrent() bool {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, generationKey).Scan(&v)
	if err != nil {
		return false
	}
	return v == strconv.Itoa(schemaGeneration)
}

func (db *DB) stampGeneration() error {
	_, err := db.conn.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, generationKey, strconv.Itoa(schemaGeneration))
	if err != nil {
		return fmt.Errorf("index: stamp generation: %w", err)
	}
	return nil
}

// Rebuild drops all derived index state and re-walks the vault. It is
// idempotent and safe to call on a healthy index; concurrent calls are
// serialized. The index reports not-ready for the duration and becomes
// ready again once the walk completes and the generation is stamped.
func (db *DB) Rebuild(ctx context.Context, store storage.Provider) error {
	db.rebuildMu.Lock()
	defer db.rebuildMu.Unlock()

	db.ready.Store(false)

	if _, err := db.conn.Exec(`DELETE FROM links`); err != nil {
		return fmt.Errorf("index: rebuild: clear links: %w", err)
	}
	if _, err := db.conn.Exec(`DELETE FROM notes`); err != nil {
		return fmt.Errorf("index: rebuild: clear notes: %w", err)
	}
	if err := ftsReset(db.conn); err != nil {
		return fmt.Errorf("index: rebuild: reset fts: %w", err)
	}

	metas, err := store.List("")
	if err != nil {
		return fmt.Errorf("index: rebuild: list vault: %w", err)
	}
	for _, m := range metas {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		data, readErr := store.Read(m.Path)
		if readErr != nil {
			continue
		}
		// Unparseable files are skipped, same as during sync.
		_ = indexFile(db, m.Path, data)
	}

	if err := db.stampGeneration(); err != nil {
		return err
	}
	db.ready.Store(true)
	return nil
}

// EnsureReady rebuilds a stale index or, when the index is healthy, runs an
// incremental sync. Meant for startup.
func EnsureReady(ctx context.Context, db *DB, store storage.Provider, logger *slog.Logger) error {
	if !db.Ready() {
		logger.Info("index: generation mismatch, rebuilding")
		return db.Rebuild(ctx, store)
	}
	return Sync(db, store, logger)
}

// notReadyFromSQL converts "missing FTS table" failures into the
// distinguished not-ready error so callers enter the rebuild protocol
// instead of treating them as fatal.
func notReadyFromSQL(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("index: %s: %w", op, apperr.ErrIndexNotReady)
	}
	return fmt.Errorf("index: %s: %w", op, err)
}
