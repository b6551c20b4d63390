// Package seed inserts configured sites at startup.
package seed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/config"
	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// Finder discovers a sitemap for a site without one configured.
type Finder interface {
	FindSitemapURL(ctx context.Context, baseURL string) (string, error)
}

// Sites creates every seed whose id is not stored yet and returns how many
// were created. Existing sites are left untouched. finder may be nil, in
// which case seeds must carry a sitemap url.
func Sites(
	ctx context.Context,
	store tracker.SiteStore,
	finder Finder,
	clock tracker.Clock,
	seeds []config.SeedSite,
	logger *zap.Logger,
) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	created := 0
	for _, s := range seeds {
		_, err := store.GetSite(ctx, s.ID)
		if err == nil {
			logger.Debug("seed site exists", zap.String("site_id", s.ID))
			continue
		}
		if !errors.Is(err, tracker.ErrNotFound) {
			return created, fmt.Errorf("look up seed site %s: %w", s.ID, err)
		}

		site, err := toSite(ctx, s, finder)
		if err != nil {
			return created, err
		}
		site.CreatedAt = clock.Now()
		if _, err := store.CreateSite(ctx, site); err != nil {
			return created, fmt.Errorf("create seed site %s: %w", s.ID, err)
		}
		logger.Info("seed site created",
			zap.String("site_id", site.ID),
			zap.String("sitemap_url", site.SitemapURL),
			zap.String("schedule", string(site.CrawlSchedule)),
		)
		created++
	}
	return created, nil
}

func toSite(ctx context.Context, s config.SeedSite, finder Finder) (tracker.Site, error) {
	schedule, err := tracker.ParseSchedule(s.CrawlSchedule)
	if err != nil {
		return tracker.Site{}, fmt.Errorf("seed site %s: %w", s.ID, err)
	}
	sitemapURL := s.SitemapURL
	if sitemapURL == "" {
		if finder == nil {
			return tracker.Site{}, fmt.Errorf("%w: seed site %s has no sitemap url", tracker.ErrValidation, s.ID)
		}
		sitemapURL, err = finder.FindSitemapURL(ctx, s.BaseURL)
		if err != nil {
			return tracker.Site{}, fmt.Errorf("seed site %s: %w", s.ID, err)
		}
	}
	name := s.Name
	if name == "" {
		name = s.BaseURL
	}
	return tracker.Site{
		ID:                s.ID,
		Name:              name,
		BaseURL:           s.BaseURL,
		SitemapURL:        sitemapURL,
		UserID:            s.UserID,
		CrawlSchedule:     schedule,
		NotificationEmail: s.NotificationEmail,
		CrawlIDs:          []string{},
	}, nil
}
