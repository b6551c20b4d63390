package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

const crawlColumns = `id, site_id, finished_at, prev_crawl_id, url_chunk_ids, diff, version`

// CreateCrawl inserts a crawl at version 1.
func (s *Store) CreateCrawl(ctx context.Context, crawl tracker.Crawl) (tracker.Crawl, error) {
	if crawl.ID == "" {
		return tracker.Crawl{}, fmt.Errorf("%w: crawl id is required", tracker.ErrValidation)
	}
	chunkIDs, diff, err := encodeCrawl(crawl)
	if err != nil {
		return tracker.Crawl{}, err
	}
	crawl = normalizeCrawl(crawl)
	crawl.Version = 1
	_, err = s.db.Exec(ctx, `
INSERT INTO crawls (`+crawlColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		crawl.ID,
		crawl.SiteID,
		crawl.FinishedAt,
		crawl.PrevCrawlID,
		chunkIDs,
		diff,
		crawl.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return tracker.Crawl{}, fmt.Errorf("crawl %s already exists: %w", crawl.ID, tracker.ErrConflict)
		}
		return tracker.Crawl{}, fmt.Errorf("insert crawl: %w", err)
	}
	return crawl, nil
}

// GetCrawl fetches a crawl by ID.
func (s *Store) GetCrawl(ctx context.Context, crawlID string) (tracker.Crawl, error) {
	row := s.db.QueryRow(ctx, `SELECT `+crawlColumns+` FROM crawls WHERE id = $1`, crawlID)
	crawl, err := scanCrawl(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracker.Crawl{}, fmt.Errorf("crawl %s: %w", crawlID, tracker.ErrNotFound)
		}
		return tracker.Crawl{}, fmt.Errorf("select crawl: %w", err)
	}
	return crawl, nil
}

// UpdateCrawl writes crawl if the stored version still equals crawl.Version.
func (s *Store) UpdateCrawl(ctx context.Context, crawl tracker.Crawl) (tracker.Crawl, error) {
	chunkIDs, diff, err := encodeCrawl(crawl)
	if err != nil {
		return tracker.Crawl{}, err
	}
	tag, err := s.db.Exec(ctx, `
UPDATE crawls
SET site_id = $3, finished_at = $4, prev_crawl_id = $5, url_chunk_ids = $6, diff = $7, version = version + 1
WHERE id = $1 AND version = $2`,
		crawl.ID,
		crawl.Version,
		crawl.SiteID,
		crawl.FinishedAt,
		crawl.PrevCrawlID,
		chunkIDs,
		diff,
	)
	if err != nil {
		return tracker.Crawl{}, fmt.Errorf("update crawl: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tracker.Crawl{}, s.missingOrStale(ctx, "crawls", crawl.ID, crawl.Version)
	}
	crawl = normalizeCrawl(crawl)
	crawl.Version++
	return crawl, nil
}

// DeleteCrawl removes a crawl row.
func (s *Store) DeleteCrawl(ctx context.Context, crawlID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM crawls WHERE id = $1`, crawlID)
	if err != nil {
		return fmt.Errorf("delete crawl: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("crawl %s: %w", crawlID, tracker.ErrNotFound)
	}
	return nil
}

func encodeCrawl(crawl tracker.Crawl) ([]byte, []byte, error) {
	chunkIDs, err := marshalList(crawl.URLChunkIDs)
	if err != nil {
		return nil, nil, err
	}
	diff, err := marshalList(crawl.DiffToPrevCrawl)
	if err != nil {
		return nil, nil, err
	}
	return chunkIDs, diff, nil
}

func normalizeCrawl(crawl tracker.Crawl) tracker.Crawl {
	crawl = crawl.Clone()
	if crawl.URLChunkIDs == nil {
		crawl.URLChunkIDs = []string{}
	}
	if crawl.DiffToPrevCrawl == nil {
		crawl.DiffToPrevCrawl = []tracker.CrawlDiffItem{}
	}
	return crawl
}

func scanCrawl(row rowScanner) (tracker.Crawl, error) {
	var (
		crawl      tracker.Crawl
		finishedAt time.Time
		chunkIDs   []byte
		diff       []byte
	)
	if err := row.Scan(
		&crawl.ID,
		&crawl.SiteID,
		&finishedAt,
		&crawl.PrevCrawlID,
		&chunkIDs,
		&diff,
		&crawl.Version,
	); err != nil {
		return tracker.Crawl{}, err
	}
	ids, err := unmarshalList[string](chunkIDs)
	if err != nil {
		return tracker.Crawl{}, err
	}
	items, err := unmarshalList[tracker.CrawlDiffItem](diff)
	if err != nil {
		return tracker.Crawl{}, err
	}
	crawl.FinishedAt = finishedAt.UTC()
	crawl.URLChunkIDs = ids
	crawl.DiffToPrevCrawl = items
	return crawl, nil
}
