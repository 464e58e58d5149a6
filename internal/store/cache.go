// Package store provides a SQLite-backed cache of extracted usage
// records, keyed by file path, mtime, and size. Unchanged log files skip
// re-extraction on subsequent compute calls; windowing and dedup still
// run per call.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/theirongolddev/ccmeter/internal/model"
)

// Cache is a SQLite-backed record cache. It implements
// pipeline.RecordCache.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup returns the cached records for a file when its tracked mtime and
// size still match. A miss (or any read error) returns hit=false so the
// caller falls back to re-extraction.
func (c *Cache) Lookup(path string, mtimeNs, sizeBytes int64) ([]model.UsageRecord, bool) {
	var trackedMtime, trackedSize int64
	err := c.db.QueryRow(
		"SELECT mtime_ns, size_bytes FROM file_tracker WHERE file_path = ?", path,
	).Scan(&trackedMtime, &trackedSize)
	if err != nil || trackedMtime != mtimeNs || trackedSize != sizeBytes {
		return nil, false
	}

	rows, err := c.db.Query(`SELECT
		ts, model, input_tokens, output_tokens, cache_create_tokens,
		cache_read_tokens, message_id, request_id
		FROM records WHERE file_path = ? ORDER BY seq`, path)
	if err != nil {
		return nil, false
	}
	defer func() { _ = rows.Close() }()

	var records []model.UsageRecord
	for rows.Next() {
		var rec model.UsageRecord
		var ts string
		var messageID, requestID sql.NullString

		err := rows.Scan(&ts, &rec.Model, &rec.Tokens.Input, &rec.Tokens.Output,
			&rec.Tokens.CacheCreate, &rec.Tokens.CacheRead, &messageID, &requestID)
		if err != nil {
			return nil, false
		}

		rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, false
		}
		rec.MessageID = messageID.String
		rec.RequestID = requestID.String
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, false
	}

	return records, true
}

// Store replaces the cached records for a file and updates its tracking
// entry.
func (c *Cache) Store(path string, mtimeNs, sizeBytes int64, records []model.UsageRecord) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.Exec(`INSERT OR REPLACE INTO file_tracker
		(file_path, mtime_ns, size_bytes, extracted_at) VALUES (?, ?, ?, ?)`,
		path, mtimeNs, sizeBytes, now)
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM records WHERE file_path = ?", path); err != nil {
		return err
	}

	for i, rec := range records {
		_, err = tx.Exec(`INSERT INTO records
			(file_path, seq, ts, model, input_tokens, output_tokens,
			 cache_create_tokens, cache_read_tokens, message_id, request_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			path, i, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Model,
			rec.Tokens.Input, rec.Tokens.Output, rec.Tokens.CacheCreate,
			rec.Tokens.CacheRead, rec.MessageID, rec.RequestID,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// TrackedFileCount returns the number of files in the tracker.
func (c *Cache) TrackedFileCount() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM file_tracker").Scan(&count)
	return count, err
}

// Prune drops tracking entries (and their records) for files that no
// longer exist on disk.
func (c *Cache) Prune() error {
	rows, err := c.db.Query("SELECT file_path FROM file_tracker")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			stale = append(stale, path)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, path := range stale {
		if _, err := c.db.Exec("DELETE FROM file_tracker WHERE file_path = ?", path); err != nil {
			return err
		}
	}
	return nil
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "ccmeter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "ccmeter")
}

// CachePath returns the full path to the cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "records.db")
}
