package chain

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/metrics"
	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// Chain positions reported when a crawl is deleted.
const (
	PositionOnly     = "only"
	PositionHead     = "head"
	PositionMiddle   = "middle"
	PositionTail     = "tail"
	PositionDetached = "detached"
)

// Config tunes the Manager.
type Config struct {
	ChunkSize int
}

// Manager owns the crawl lifecycle of every site: it records new crawls,
// rebuilds historical URL sets and repairs the chain on deletion. Operations
// on the same site are serialized.
type Manager struct {
	sites  tracker.SiteStore
	crawls tracker.CrawlStore
	chunks *ChunkStore
	source tracker.SitemapSource
	clock  tracker.Clock
	ids    tracker.IDGenerator
	locks  *siteLocks
	logger *zap.Logger
}

// SiteCrawlResult is the outcome of one site in a bulk crawl.
type SiteCrawlResult struct {
	Site  tracker.Site
	Crawl tracker.Crawl
	Err   error
}

// NewManager wires a Manager.
func NewManager(
	sites tracker.SiteStore,
	crawls tracker.CrawlStore,
	chunkRepo tracker.ChunkRepository,
	source tracker.SitemapSource,
	clock tracker.Clock,
	ids tracker.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sites:  sites,
		crawls: crawls,
		chunks: NewChunkStore(chunkRepo, ids, cfg.ChunkSize, logger.Named("chunks")),
		source: source,
		clock:  clock,
		ids:    ids,
		locks:  newSiteLocks(),
		logger: logger,
	}
}

// GetSite returns a site by id.
func (m *Manager) GetSite(ctx context.Context, siteID string) (tracker.Site, error) {
	site, err := m.sites.GetSite(ctx, siteID)
	if err != nil {
		return tracker.Site{}, fmt.Errorf("load site %s: %w", siteID, err)
	}
	return site, nil
}

// GetCrawl returns a crawl by id.
func (m *Manager) GetCrawl(ctx context.Context, crawlID string) (tracker.Crawl, error) {
	crawl, err := m.crawls.GetCrawl(ctx, crawlID)
	if err != nil {
		return tracker.Crawl{}, fmt.Errorf("load crawl %s: %w", crawlID, err)
	}
	return crawl, nil
}

// ListCrawls returns the site's crawls in chain order.
func (m *Manager) ListCrawls(ctx context.Context, siteID string) ([]tracker.Crawl, error) {
	site, err := m.GetSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	out := make([]tracker.Crawl, 0, len(site.CrawlIDs))
	for _, id := range site.CrawlIDs {
		crawl, err := m.GetCrawl(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, crawl)
	}
	return out, nil
}

// CrawlSite fetches the site's sitemap and appends a new crawl to its chain.
// The first crawl stores the full URL set; later crawls store a diff against
// the replayed state of the chain. On failure nothing is left behind.
func (m *Manager) CrawlSite(ctx context.Context, site tracker.Site) (tracker.Crawl, error) {
	unlock := m.locks.lock(site.ID)
	defer unlock()

	logger := m.logger.With(zap.String("site_id", site.ID))
	crawl, urlCount, err := m.crawlLocked(ctx, site.ID)
	if err != nil {
		metrics.ObserveCrawl("failed", -1)
		logger.Warn("crawl failed", zap.Error(err))
		return tracker.Crawl{}, err
	}
	added, removed := crawl.DiffCounts()
	metrics.ObserveCrawl("succeeded", urlCount)
	metrics.ObserveDiff(added, removed)
	logger.Info("crawl finished",
		zap.String("crawl_id", crawl.ID),
		zap.Int("urls", urlCount),
		zap.Int("added", added),
		zap.Int("removed", removed),
	)
	return crawl, nil
}

func (m *Manager) crawlLocked(ctx context.Context, siteID string) (tracker.Crawl, int, error) {
	site, err := m.GetSite(ctx, siteID)
	if err != nil {
		return tracker.Crawl{}, 0, err
	}
	if site.SitemapURL == "" {
		return tracker.Crawl{}, 0, fmt.Errorf("%w: site %s has no sitemap url", tracker.ErrValidation, siteID)
	}
	urls, err := m.source.FetchURLs(ctx, site.SitemapURL)
	if err != nil {
		return tracker.Crawl{}, 0, fmt.Errorf("crawl site %s: %w", siteID, err)
	}
	// Nested sitemaps often repeat a <loc>; the chain holds a set.
	urls = uniqueURLs(urls)
	crawlID, err := m.ids.NewID()
	if err != nil {
		return tracker.Crawl{}, 0, fmt.Errorf("generate crawl id: %w", err)
	}

	crawl := tracker.Crawl{
		ID:              crawlID,
		SiteID:          siteID,
		URLChunkIDs:     []string{},
		DiffToPrevCrawl: []tracker.CrawlDiffItem{},
	}
	if last, ok := site.LastCrawlID(); ok {
		previous, err := m.replay(ctx, site.CrawlIDs)
		if err != nil {
			return tracker.Crawl{}, 0, err
		}
		crawl.PrevCrawlID = last
		crawl.DiffToPrevCrawl = ComputeDiff(urls, previous)
	} else {
		chunkIDs, err := m.chunks.Save(ctx, urls, crawlID)
		if err != nil {
			m.discardChunks(ctx, crawlID)
			return tracker.Crawl{}, 0, err
		}
		crawl.URLChunkIDs = chunkIDs
	}
	crawl.FinishedAt = m.clock.Now()

	created, err := m.crawls.CreateCrawl(ctx, crawl)
	if err != nil {
		m.discardChunks(ctx, crawlID)
		return tracker.Crawl{}, 0, fmt.Errorf("create crawl: %w", err)
	}
	site.CrawlIDs = append(slices.Clone(site.CrawlIDs), crawlID)
	if _, err := m.sites.UpdateSite(ctx, site); err != nil {
		m.discardCrawl(ctx, crawlID)
		return tracker.Crawl{}, 0, fmt.Errorf("link crawl %s to site %s: %w", crawlID, siteID, err)
	}
	return created, len(urls), nil
}

// URLsAt rebuilds the URL set as it was when crawlID finished.
func (m *Manager) URLsAt(ctx context.Context, crawlID string) ([]string, error) {
	crawl, err := m.GetCrawl(ctx, crawlID)
	if err != nil {
		return nil, err
	}
	unlock := m.locks.lock(crawl.SiteID)
	defer unlock()

	site, err := m.GetSite(ctx, crawl.SiteID)
	if err != nil {
		return nil, err
	}
	idx := site.CrawlIndex(crawlID)
	if idx < 0 {
		return nil, fmt.Errorf("crawl %s is not part of site %s: %w", crawlID, site.ID, tracker.ErrNotFound)
	}
	return m.replay(ctx, site.CrawlIDs[:idx+1])
}

// replay loads the snapshot at the start of chain and applies every later diff.
func (m *Manager) replay(ctx context.Context, chain []string) ([]string, error) {
	if len(chain) == 0 {
		return []string{}, nil
	}
	head, err := m.GetCrawl(ctx, chain[0])
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	urls, err := m.chunks.Load(ctx, head.URLChunkIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range chain[1:] {
		crawl, err := m.GetCrawl(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("replay chain: %w", err)
		}
		urls = ApplyDiff(urls, crawl.DiffToPrevCrawl)
	}
	return urls, nil
}

// UpdateURLCheckedStatus sets the checked flag of the first diff item for url.
// It reports false, without error, when the diff does not mention url.
func (m *Manager) UpdateURLCheckedStatus(
	ctx context.Context,
	crawlID string,
	url string,
	checked bool,
) (tracker.Crawl, bool, error) {
	crawl, err := m.GetCrawl(ctx, crawlID)
	if err != nil {
		return tracker.Crawl{}, false, err
	}
	unlock := m.locks.lock(crawl.SiteID)
	defer unlock()

	crawl, err = m.GetCrawl(ctx, crawlID)
	if err != nil {
		return tracker.Crawl{}, false, err
	}
	i := slices.IndexFunc(crawl.DiffToPrevCrawl, func(item tracker.CrawlDiffItem) bool {
		return item.URL == url
	})
	if i < 0 {
		return tracker.Crawl{}, false, nil
	}
	crawl.DiffToPrevCrawl[i].Checked = checked
	updated, err := m.crawls.UpdateCrawl(ctx, crawl)
	if err != nil {
		return tracker.Crawl{}, false, fmt.Errorf("update crawl %s: %w", crawlID, err)
	}
	return updated, true, nil
}

// DeleteCrawl removes a crawl owned by userID and repairs the chain around it.
// Deleting the snapshot holder moves the full URL set to its successor;
// deleting a middle crawl merges its diff into the successor's.
func (m *Manager) DeleteCrawl(ctx context.Context, crawlID string, userID string) error {
	crawl, err := m.GetCrawl(ctx, crawlID)
	if err != nil {
		return err
	}
	unlock := m.locks.lock(crawl.SiteID)
	defer unlock()

	site, err := m.GetSite(ctx, crawl.SiteID)
	if err != nil {
		return err
	}
	if site.UserID != userID {
		return fmt.Errorf("delete crawl %s: %w", crawlID, tracker.ErrUnauthorized)
	}
	crawl, err = m.GetCrawl(ctx, crawlID)
	if err != nil {
		return err
	}

	position, err := m.unlink(ctx, site, crawl)
	if err != nil {
		return err
	}
	metrics.ObserveChainDeletion(position)
	m.logger.Info("crawl unlinked",
		zap.String("site_id", site.ID),
		zap.String("crawl_id", crawlID),
		zap.String("position", position),
	)
	return m.destroy(ctx, crawlID)
}

// unlink relinks the neighbours of crawl and drops it from the site's chain.
func (m *Manager) unlink(ctx context.Context, site tracker.Site, crawl tracker.Crawl) (string, error) {
	idx := site.CrawlIndex(crawl.ID)
	if idx < 0 {
		return PositionDetached, nil
	}

	var (
		position string
		before   tracker.Crawl
		after    tracker.Crawl
		relinked bool
		err      error
	)
	last := len(site.CrawlIDs) - 1
	switch {
	case last == 0:
		position = PositionOnly
	case idx == 0:
		position = PositionHead
		before, after, err = m.promoteSnapshot(ctx, crawl, site.CrawlIDs[1])
		relinked = true
	case idx == last:
		position = PositionTail
	default:
		position = PositionMiddle
		before, after, err = m.absorbDiff(ctx, crawl, site.CrawlIDs[idx-1], site.CrawlIDs[idx+1])
		relinked = true
	}
	if err != nil {
		return "", err
	}

	site.CrawlIDs = slices.Delete(slices.Clone(site.CrawlIDs), idx, idx+1)
	if _, err := m.sites.UpdateSite(ctx, site); err != nil {
		if relinked {
			m.restoreCrawl(ctx, before, after)
		}
		return "", fmt.Errorf("unlink crawl %s from site %s: %w", crawl.ID, site.ID, err)
	}
	return position, nil
}

// promoteSnapshot turns the head's successor into the new snapshot holder.
// The head's chunks are read before anything is deleted.
func (m *Manager) promoteSnapshot(
	ctx context.Context,
	head tracker.Crawl,
	nextID string,
) (tracker.Crawl, tracker.Crawl, error) {
	urls, err := m.chunks.Load(ctx, head.URLChunkIDs)
	if err != nil {
		return tracker.Crawl{}, tracker.Crawl{}, err
	}
	next, err := m.GetCrawl(ctx, nextID)
	if err != nil {
		return tracker.Crawl{}, tracker.Crawl{}, err
	}
	before := next.Clone()

	urls = ApplyDiff(urls, next.DiffToPrevCrawl)
	chunkIDs, err := m.chunks.Save(ctx, urls, next.ID)
	if err != nil {
		m.discardChunks(ctx, next.ID)
		return tracker.Crawl{}, tracker.Crawl{}, err
	}
	next.URLChunkIDs = chunkIDs
	next.DiffToPrevCrawl = []tracker.CrawlDiffItem{}
	next.PrevCrawlID = ""

	after, err := m.crawls.UpdateCrawl(ctx, next)
	if err != nil {
		m.discardChunks(ctx, next.ID)
		return tracker.Crawl{}, tracker.Crawl{}, fmt.Errorf("promote crawl %s: %w", next.ID, err)
	}
	return before, after, nil
}

// absorbDiff relinks next to prevID and folds the deleted crawl's diff into it.
func (m *Manager) absorbDiff(
	ctx context.Context,
	deleted tracker.Crawl,
	prevID string,
	nextID string,
) (tracker.Crawl, tracker.Crawl, error) {
	next, err := m.GetCrawl(ctx, nextID)
	if err != nil {
		return tracker.Crawl{}, tracker.Crawl{}, err
	}
	before := next.Clone()
	next.PrevCrawlID = prevID
	next.DiffToPrevCrawl = mergeAdjacent(deleted.DiffToPrevCrawl, next.DiffToPrevCrawl)

	after, err := m.crawls.UpdateCrawl(ctx, next)
	if err != nil {
		return tracker.Crawl{}, tracker.Crawl{}, fmt.Errorf("relink crawl %s: %w", next.ID, err)
	}
	return before, after, nil
}

// restoreCrawl puts a relinked neighbour back the way it was.
func (m *Manager) restoreCrawl(ctx context.Context, before, after tracker.Crawl) {
	ctx = context.WithoutCancel(ctx)
	before.Version = after.Version
	if _, err := m.crawls.UpdateCrawl(ctx, before); err != nil {
		m.logger.Error("restore crawl failed", zap.String("crawl_id", before.ID), zap.Error(err))
		return
	}
	if len(before.URLChunkIDs) == 0 && len(after.URLChunkIDs) > 0 {
		m.discardChunks(ctx, after.ID)
	}
}

// DeleteCrawlsForSite empties the site's chain and removes every crawl in it.
func (m *Manager) DeleteCrawlsForSite(ctx context.Context, siteID string) error {
	unlock := m.locks.lock(siteID)
	defer unlock()

	site, err := m.GetSite(ctx, siteID)
	if err != nil {
		return err
	}
	crawlIDs := site.CrawlIDs
	site.CrawlIDs = []string{}
	if _, err := m.sites.UpdateSite(ctx, site); err != nil {
		return fmt.Errorf("reset chain of site %s: %w", siteID, err)
	}

	var errs []error
	for _, id := range crawlIDs {
		if err := m.destroy(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	m.logger.Info("site crawls deleted", zap.String("site_id", siteID), zap.Int("crawls", len(crawlIDs)))
	return errors.Join(errs...)
}

// CrawlUserSites crawls every site owned by userID one after another. A
// failing site does not stop the others.
func (m *Manager) CrawlUserSites(ctx context.Context, userID string) ([]SiteCrawlResult, error) {
	sites, err := m.sites.ListSitesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sites for user: %w", err)
	}
	results := make([]SiteCrawlResult, 0, len(sites))
	for _, site := range sites {
		if ctx.Err() != nil {
			return results, fmt.Errorf("crawl user sites: %w", ctx.Err())
		}
		crawl, err := m.CrawlSite(ctx, site)
		results = append(results, SiteCrawlResult{Site: site, Crawl: crawl, Err: err})
	}
	return results, nil
}

// destroy deletes a crawl record and its chunks.
func (m *Manager) destroy(ctx context.Context, crawlID string) error {
	if err := m.chunks.DeleteAllForCrawl(ctx, crawlID); err != nil {
		return err
	}
	if err := m.crawls.DeleteCrawl(ctx, crawlID); err != nil && !errors.Is(err, tracker.ErrNotFound) {
		return fmt.Errorf("delete crawl %s: %w", crawlID, err)
	}
	return nil
}

func (m *Manager) discardChunks(ctx context.Context, crawlID string) {
	if err := m.chunks.DeleteAllForCrawl(context.WithoutCancel(ctx), crawlID); err != nil {
		m.logger.Error("discard chunks failed", zap.String("crawl_id", crawlID), zap.Error(err))
	}
}

func (m *Manager) discardCrawl(ctx context.Context, crawlID string) {
	if err := m.destroy(context.WithoutCancel(ctx), crawlID); err != nil {
		m.logger.Error("discard crawl failed", zap.String("crawl_id", crawlID), zap.Error(err))
	}
}
