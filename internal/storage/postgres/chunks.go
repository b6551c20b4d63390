package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

var chunkColumns = []string{"id", "crawl_id", "urls"}

// SaveChunks bulk-loads chunks with COPY, which is all-or-nothing.
func (s *Store) SaveChunks(ctx context.Context, chunks []tracker.URLChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(chunks))
	for _, chunk := range chunks {
		urls, err := marshalList(chunk.URLs)
		if err != nil {
			return err
		}
		rows = append(rows, []any{chunk.ID, chunk.CrawlID, urls})
	}
	copied, err := s.db.CopyFrom(ctx, pgx.Identifier{"url_chunks"}, chunkColumns, pgx.CopyFromRows(rows))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("copy url chunks: %w", tracker.ErrConflict)
		}
		return fmt.Errorf("copy url chunks: %w", err)
	}
	if copied != int64(len(rows)) {
		return fmt.Errorf("copy url chunks: wrote %d of %d rows", copied, len(rows))
	}
	return nil
}

// GetChunk fetches one chunk by ID.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (tracker.URLChunk, error) {
	var (
		chunk tracker.URLChunk
		urls  []byte
	)
	err := s.db.QueryRow(ctx, `SELECT id, crawl_id, urls FROM url_chunks WHERE id = $1`, chunkID).
		Scan(&chunk.ID, &chunk.CrawlID, &urls)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracker.URLChunk{}, fmt.Errorf("chunk %s: %w", chunkID, tracker.ErrNotFound)
		}
		return tracker.URLChunk{}, fmt.Errorf("select chunk: %w", err)
	}
	chunk.URLs, err = unmarshalList[string](urls)
	if err != nil {
		return tracker.URLChunk{}, err
	}
	return chunk, nil
}

// DeleteChunksByCrawl removes every chunk owned by crawlID.
func (s *Store) DeleteChunksByCrawl(ctx context.Context, crawlID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM url_chunks WHERE crawl_id = $1`, crawlID); err != nil {
		return fmt.Errorf("delete url chunks: %w", err)
	}
	return nil
}
