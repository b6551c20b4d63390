package chain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/sitemap-tracker/internal/storage/memory"
	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("id-%04d", s.n.Add(1)), nil
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Hour)
	return c.now
}

// fakeSource serves whatever URL set was configured last for a sitemap.
type fakeSource struct {
	mu   sync.Mutex
	urls map[string][]string
	errs map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{urls: make(map[string][]string), errs: make(map[string]error)}
}

func (f *fakeSource) set(sitemapURL string, urls ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls[sitemapURL] = urls
	delete(f.errs, sitemapURL)
}

func (f *fakeSource) fail(sitemapURL string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[sitemapURL] = err
}

func (f *fakeSource) FetchURLs(_ context.Context, sitemapURL string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[sitemapURL]; err != nil {
		return nil, err
	}
	return append([]string(nil), f.urls[sitemapURL]...), nil
}

// flakySites fails UpdateSite on demand.
type flakySites struct {
	*memory.SiteStore
	failUpdates atomic.Bool
}

func (f *flakySites) UpdateSite(ctx context.Context, site tracker.Site) (tracker.Site, error) {
	if f.failUpdates.Load() {
		return tracker.Site{}, fmt.Errorf("site %s: %w", site.ID, tracker.ErrConflict)
	}
	return f.SiteStore.UpdateSite(ctx, site)
}
