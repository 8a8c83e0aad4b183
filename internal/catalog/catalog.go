// Copyright 2022-2025 Applied Ocean Sciences
//
// Permission to use, copy, modify, and/or distribute this software for any purpose with or
// without fee is hereby granted, provided that the above copyright notice and this
// permission notice appear in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO
// THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT
// SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR
// ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION
// OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE
// USE OR PERFORMANCE OF THIS SOFTWARE.

// Package catalog maintains a SQLite index of completed chunk files, so a
// downstream archiver or operator can query what has been staged without
// walking the staging directory.
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Catalog wraps a SQLite database recording one row per completed chunk
// file. It is safe for concurrent use; database/sql pools its own
// connections.
type Catalog struct {
	db *sql.DB
}

// Open creates (if necessary) and opens the catalog database at path.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS chunks (
		path         TEXT PRIMARY KEY,
		bucket_start INTEGER NOT NULL,
		size_bytes   INTEGER NOT NULL,
		digest_path  TEXT,
		recorded_at  INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: create schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Record inserts or replaces the row for a completed chunk file. digestPath
// may be empty when digest computation is disabled.
func (c *Catalog) Record(path string, bucketStartMicros uint64, sizeBytes int64, digestPath string) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO chunks (path, bucket_start, size_bytes, digest_path, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		path, bucketStartMicros, sizeBytes, nullableString(digestPath), time.Now().UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("catalog: record %s: %w", path, err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Entry is one row of the chunk catalog.
type Entry struct {
	Path        string
	BucketStart uint64
	SizeBytes   int64
	DigestPath  string
	RecordedAt  time.Time
}

// Recent returns up to limit of the most recently recorded chunk files,
// newest first.
func (c *Catalog) Recent(limit int) ([]Entry, error) {
	rows, err := c.db.Query(
		`SELECT path, bucket_start, size_bytes, COALESCE(digest_path, ''), recorded_at
		 FROM chunks ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: query recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recordedAtMicros int64
		if err := rows.Scan(&e.Path, &e.BucketStart, &e.SizeBytes, &e.DigestPath, &recordedAtMicros); err != nil {
			return nil, fmt.Errorf("catalog: scan row: %w", err)
		}
		e.RecordedAt = time.UnixMicro(recordedAtMicros)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}
