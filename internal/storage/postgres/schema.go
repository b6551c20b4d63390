package postgres

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sites (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	base_url           TEXT NOT NULL,
	sitemap_url        TEXT NOT NULL DEFAULT '',
	user_id            TEXT NOT NULL,
	crawl_schedule     TEXT NOT NULL DEFAULT 'none',
	notification_email TEXT NOT NULL DEFAULT '',
	crawl_ids          JSONB NOT NULL DEFAULT '[]'::jsonb,
	version            BIGINT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sites_user_id_idx ON sites (user_id);
CREATE INDEX IF NOT EXISTS sites_crawl_schedule_idx ON sites (crawl_schedule);
CREATE TABLE IF NOT EXISTS crawls (
	id            TEXT PRIMARY KEY,
	site_id       TEXT NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL,
	prev_crawl_id TEXT NOT NULL DEFAULT '',
	url_chunk_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	diff          JSONB NOT NULL DEFAULT '[]'::jsonb,
	version       BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS crawls_site_id_idx ON crawls (site_id);
CREATE TABLE IF NOT EXISTS url_chunks (
	id       TEXT PRIMARY KEY,
	crawl_id TEXT NOT NULL,
	urls     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS url_chunks_crawl_id_idx ON url_chunks (crawl_id);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
