package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

const siteColumns = `id, name, base_url, sitemap_url, user_id, crawl_schedule, notification_email, crawl_ids, version, created_at`

// CreateSite inserts a site at version 1.
func (s *Store) CreateSite(ctx context.Context, site tracker.Site) (tracker.Site, error) {
	if site.ID == "" {
		return tracker.Site{}, fmt.Errorf("%w: site id is required", tracker.ErrValidation)
	}
	crawlIDs, err := marshalList(site.CrawlIDs)
	if err != nil {
		return tracker.Site{}, err
	}
	site = site.Clone()
	if site.CrawlIDs == nil {
		site.CrawlIDs = []string{}
	}
	if site.CrawlSchedule == "" {
		site.CrawlSchedule = tracker.ScheduleNone
	}
	site.Version = 1
	_, err = s.db.Exec(ctx, `
INSERT INTO sites (`+siteColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		site.ID,
		site.Name,
		site.BaseURL,
		site.SitemapURL,
		site.UserID,
		string(site.CrawlSchedule),
		site.NotificationEmail,
		crawlIDs,
		site.Version,
		site.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return tracker.Site{}, fmt.Errorf("site %s already exists: %w", site.ID, tracker.ErrConflict)
		}
		return tracker.Site{}, fmt.Errorf("insert site: %w", err)
	}
	return site, nil
}

// GetSite fetches a site by ID.
func (s *Store) GetSite(ctx context.Context, siteID string) (tracker.Site, error) {
	row := s.db.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, siteID)
	site, err := scanSite(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracker.Site{}, fmt.Errorf("site %s: %w", siteID, tracker.ErrNotFound)
		}
		return tracker.Site{}, fmt.Errorf("select site: %w", err)
	}
	return site, nil
}

// UpdateSite writes site if the stored version still equals site.Version.
func (s *Store) UpdateSite(ctx context.Context, site tracker.Site) (tracker.Site, error) {
	crawlIDs, err := marshalList(site.CrawlIDs)
	if err != nil {
		return tracker.Site{}, err
	}
	tag, err := s.db.Exec(ctx, `
UPDATE sites
SET name = $3, base_url = $4, sitemap_url = $5, user_id = $6, crawl_schedule = $7,
	notification_email = $8, crawl_ids = $9, version = version + 1
WHERE id = $1 AND version = $2`,
		site.ID,
		site.Version,
		site.Name,
		site.BaseURL,
		site.SitemapURL,
		site.UserID,
		string(site.CrawlSchedule),
		site.NotificationEmail,
		crawlIDs,
	)
	if err != nil {
		return tracker.Site{}, fmt.Errorf("update site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tracker.Site{}, s.missingOrStale(ctx, "sites", site.ID, site.Version)
	}
	site = site.Clone()
	if site.CrawlIDs == nil {
		site.CrawlIDs = []string{}
	}
	site.Version++
	return site, nil
}

// ListSitesBySchedule returns sites crawled on the given cadence, ordered by ID.
func (s *Store) ListSitesBySchedule(ctx context.Context, schedule tracker.Schedule) ([]tracker.Site, error) {
	return s.listSites(ctx, `SELECT `+siteColumns+` FROM sites WHERE crawl_schedule = $1 ORDER BY id`, string(schedule))
}

// ListSitesByUser returns the sites owned by userID, ordered by ID.
func (s *Store) ListSitesByUser(ctx context.Context, userID string) ([]tracker.Site, error) {
	return s.listSites(ctx, `SELECT `+siteColumns+` FROM sites WHERE user_id = $1 ORDER BY id`, userID)
}

func (s *Store) listSites(ctx context.Context, query string, arg any) ([]tracker.Site, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	sites := []tracker.Site{}
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return sites, nil
}

func scanSite(row rowScanner) (tracker.Site, error) {
	var (
		site      tracker.Site
		schedule  string
		crawlIDs  []byte
		createdAt time.Time
	)
	if err := row.Scan(
		&site.ID,
		&site.Name,
		&site.BaseURL,
		&site.SitemapURL,
		&site.UserID,
		&schedule,
		&site.NotificationEmail,
		&crawlIDs,
		&site.Version,
		&createdAt,
	); err != nil {
		return tracker.Site{}, err
	}
	ids, err := unmarshalList[string](crawlIDs)
	if err != nil {
		return tracker.Site{}, err
	}
	site.CrawlSchedule = tracker.Schedule(schedule)
	site.CrawlIDs = ids
	site.CreatedAt = createdAt.UTC()
	return site, nil
}

// missingOrStale explains a zero-row versioned update.
func (s *Store) missingOrStale(ctx context.Context, table, id string, version int64) error {
	var exists bool
	// table is one of the package's constant table names.
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s %s: %w", table, id, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", table, id, tracker.ErrNotFound)
	}
	return fmt.Errorf("%s %s changed since version %d: %w", table, id, version, tracker.ErrConflict)
}
