package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// SiteStore provides an in-memory implementation for development/testing.
type SiteStore struct {
	mu    sync.RWMutex
	sites map[string]tracker.Site
}

// NewSiteStore constructs a SiteStore.
func NewSiteStore() *SiteStore {
	return &SiteStore{sites: make(map[string]tracker.Site)}
}

// CreateSite stores a new site at version 1.
func (s *SiteStore) CreateSite(_ context.Context, site tracker.Site) (tracker.Site, error) {
	if site.ID == "" {
		return tracker.Site{}, fmt.Errorf("%w: site id is required", tracker.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sites[site.ID]; exists {
		return tracker.Site{}, fmt.Errorf("site %s already exists: %w", site.ID, tracker.ErrConflict)
	}
	site = site.Clone()
	if site.CrawlIDs == nil {
		site.CrawlIDs = []string{}
	}
	site.Version = 1
	s.sites[site.ID] = site
	return site.Clone(), nil
}

// GetSite fetches a site by ID.
func (s *SiteStore) GetSite(_ context.Context, siteID string) (tracker.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return tracker.Site{}, fmt.Errorf("site %s: %w", siteID, tracker.ErrNotFound)
	}
	return site.Clone(), nil
}

// UpdateSite replaces a site if its version matches the stored one.
func (s *SiteStore) UpdateSite(_ context.Context, site tracker.Site) (tracker.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sites[site.ID]
	if !ok {
		return tracker.Site{}, fmt.Errorf("site %s: %w", site.ID, tracker.ErrNotFound)
	}
	if stored.Version != site.Version {
		return tracker.Site{}, fmt.Errorf(
			"site %s at version %d, got %d: %w", site.ID, stored.Version, site.Version, tracker.ErrConflict,
		)
	}
	site = site.Clone()
	site.Version++
	s.sites[site.ID] = site
	return site.Clone(), nil
}

// ListSitesBySchedule returns sites crawled on the given cadence, ordered by ID.
func (s *SiteStore) ListSitesBySchedule(_ context.Context, schedule tracker.Schedule) ([]tracker.Site, error) {
	return s.filter(func(site tracker.Site) bool { return site.CrawlSchedule == schedule }), nil
}

// ListSitesByUser returns the sites owned by userID, ordered by ID.
func (s *SiteStore) ListSitesByUser(_ context.Context, userID string) ([]tracker.Site, error) {
	return s.filter(func(site tracker.Site) bool { return site.UserID == userID }), nil
}

func (s *SiteStore) filter(keep func(tracker.Site) bool) []tracker.Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tracker.Site, 0)
	for _, site := range s.sites {
		if keep(site) {
			out = append(out, site.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
