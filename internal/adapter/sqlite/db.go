// Package sqlite implements the storage repositories on an embedded SQLite
// database for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    excerpt TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS images (
    id TEXT PRIMARY KEY,
    parent_id TEXT,
    source_url TEXT NOT NULL,
    alt_text TEXT,
    is_product INTEGER NOT NULL DEFAULT 0,
    ai_model TEXT,
    ai_cached_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_images_source_url ON images(source_url);
CREATE INDEX IF NOT EXISTS idx_images_parent_id ON images(parent_id);

CREATE TABLE IF NOT EXISTS alt_change_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts TEXT NOT NULL,
    image_id TEXT,
    parent_document_id TEXT,
    old_alt_text TEXT,
    new_alt_text TEXT,
    source TEXT NOT NULL,
    model_used TEXT,
    status TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT
);
CREATE INDEX IF NOT EXISTS idx_alt_change_log_ts ON alt_change_log(ts);
`

// Open connects to the database at path (":memory:" is accepted) and
// bootstraps the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return db, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(timeLayout, value)
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullablePtr(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func ptrFromNull(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}
