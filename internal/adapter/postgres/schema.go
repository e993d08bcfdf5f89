package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

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
    is_product BOOLEAN NOT NULL DEFAULT FALSE,
    ai_model TEXT,
    ai_cached_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_images_source_url ON images(source_url);
CREATE INDEX IF NOT EXISTS idx_images_parent_id ON images(parent_id);

CREATE TABLE IF NOT EXISTS alt_change_log (
    id BIGSERIAL PRIMARY KEY,
    ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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

// Connect opens a pool and bootstraps the schema.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return pool, nil
}
