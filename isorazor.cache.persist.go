package isorazor

import (
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/itsatony/go-cuserr"
	_ "github.com/mattn/go-sqlite3"
)

// CachePersister saves and restores artifact cache entries across runs
type CachePersister interface {
	Load(ctx context.Context) ([]CacheEntry, error)
	Save(ctx context.Context, entries []CacheEntry) error
	Close() error
}

// GobPersister keeps the cache in a single gob file
type GobPersister struct {
	path string
}

// NewGobPersister creates a persister writing to path
func NewGobPersister(path string) *GobPersister {
	return &GobPersister{path: path}
}

// Path returns the file the persister writes
func (p *GobPersister) Path() string { return p.path }

// Load reads the cache file. A missing file yields no entries.
func (p *GobPersister) Load(ctx context.Context) ([]CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, persistError(ErrMsgCacheRestore, p.path, err)
	}
	defer f.Close()

	var entries []CacheEntry
	if err := gob.NewDecoder(f).Decode(&entries); err != nil {
		return nil, persistError(ErrMsgCacheRestore, p.path, err)
	}
	return entries, nil
}

// Save replaces the cache file. The file is written next to its final
// name and renamed into place.
func (p *GobPersister) Save(ctx context.Context, entries []CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), TemplateDirPerm); err != nil {
		return persistError(ErrMsgCachePersist, p.path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.path), filepath.Base(p.path)+".*")
	if err != nil {
		return persistError(ErrMsgCachePersist, p.path, err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(entries); err != nil {
		tmp.Close()
		return persistError(ErrMsgCachePersist, p.path, err)
	}
	if err := tmp.Close(); err != nil {
		return persistError(ErrMsgCachePersist, p.path, err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return persistError(ErrMsgCachePersist, p.path, err)
	}
	return nil
}

// Close is a no-op
func (p *GobPersister) Close() error { return nil }

// SQLitePersister keeps the cache in a SQLite table
type SQLitePersister struct {
	db    *sql.DB
	table string
}

// NewSQLitePersister opens or creates the database at path
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), TemplateDirPerm); err != nil {
		return nil, persistError(ErrMsgCachePersist, path, err)
	}
	db, err := sql.Open(SQLiteDriverName, path)
	if err != nil {
		return nil, persistError(ErrMsgCachePersist, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, persistError(ErrMsgCachePersist, path, err)
	}
	// One writer at a time avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	p := &SQLitePersister{db: db, table: SQLiteCacheTable}
	if err := p.applySchema(); err != nil {
		db.Close()
		return nil, persistError(ErrMsgCachePersist, path, err)
	}
	return p, nil
}

func (p *SQLitePersister) applySchema() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := p.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	_, err := p.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name        TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			timestamp   INTEGER NOT NULL,
			location    TEXT NOT NULL
		)`, p.table))
	return err
}

// Load reads every stored entry
func (p *SQLitePersister) Load(ctx context.Context) ([]CacheEntry, error) {
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT name, fingerprint, timestamp, location FROM %s ORDER BY name", p.table))
	if err != nil {
		return nil, persistError(ErrMsgCacheRestore, p.table, err)
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		var (
			e      CacheEntry
			fp     string
			tsNano int64
		)
		if err := rows.Scan(&e.Name, &fp, &tsNano, &e.Location); err != nil {
			return nil, persistError(ErrMsgCacheRestore, p.table, err)
		}
		if _, err := fmt.Sscanf(fp, "%x", &e.Fingerprint); err != nil {
			return nil, persistError(ErrMsgCacheRestore, p.table, err)
		}
		if tsNano != 0 {
			e.Timestamp = time.Unix(0, tsNano).UTC()
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistError(ErrMsgCacheRestore, p.table, err)
	}
	return entries, nil
}

// Save replaces the stored entries in one transaction
func (p *SQLitePersister) Save(ctx context.Context, entries []CacheEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return persistError(ErrMsgCachePersist, p.table, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", p.table)); err != nil {
		return persistError(ErrMsgCachePersist, p.table, err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (name, fingerprint, timestamp, location) VALUES (?, ?, ?, ?)", p.table))
	if err != nil {
		return persistError(ErrMsgCachePersist, p.table, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var tsNano int64
		if !e.Timestamp.IsZero() {
			tsNano = e.Timestamp.UnixNano()
		}
		// uint64 does not fit SQLite's signed integers, so it is stored as hex.
		if _, err := stmt.ExecContext(ctx, e.Name, fmt.Sprintf("%016x", e.Fingerprint), tsNano, e.Location); err != nil {
			return persistError(ErrMsgCachePersist, p.table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return persistError(ErrMsgCachePersist, p.table, err)
	}
	return nil
}

// Close closes the database
func (p *SQLitePersister) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func persistError(msg, path string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodePersistence, msg).
		WithMetadata(MetaKeyPath, path)
}
