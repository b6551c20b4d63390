package chain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/storage/memory"
	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

const (
	testSitemap = "https://example.com/sitemap.xml"
	testUser    = "user-1"
)

type fixture struct {
	sites  *flakySites
	crawls *memory.CrawlStore
	chunks *memory.ChunkStore
	source *fakeSource
	mgr    *Manager
	site   tracker.Site
}

func newFixture(t *testing.T, chunkSize int) *fixture {
	t.Helper()

	f := &fixture{
		sites:  &flakySites{SiteStore: memory.NewSiteStore()},
		crawls: memory.NewCrawlStore(),
		chunks: memory.NewChunkStore(),
		source: newFakeSource(),
	}
	f.mgr = NewManager(
		f.sites,
		f.crawls,
		f.chunks,
		f.source,
		newStepClock(),
		&seqIDs{},
		Config{ChunkSize: chunkSize},
		zap.NewNop(),
	)
	site, err := f.sites.CreateSite(context.Background(), tracker.Site{
		ID:         "site-1",
		Name:       "Example",
		SitemapURL: testSitemap,
		UserID:     testUser,
	})
	require.NoError(t, err)
	f.site = site
	return f
}

func (f *fixture) crawl(t *testing.T, urls ...string) tracker.Crawl {
	t.Helper()
	f.source.set(testSitemap, urls...)
	crawl, err := f.mgr.CrawlSite(context.Background(), f.site)
	require.NoError(t, err)
	return crawl
}

func (f *fixture) chain(t *testing.T) []string {
	t.Helper()
	site, err := f.sites.GetSite(context.Background(), f.site.ID)
	require.NoError(t, err)
	return site.CrawlIDs
}

func (f *fixture) get(t *testing.T, crawlID string) tracker.Crawl {
	t.Helper()
	crawl, err := f.crawls.GetCrawl(context.Background(), crawlID)
	require.NoError(t, err)
	return crawl
}

func (f *fixture) urlsAt(t *testing.T, crawlID string) []string {
	t.Helper()
	urls, err := f.mgr.URLsAt(context.Background(), crawlID)
	require.NoError(t, err)
	return urls
}

func TestCrawlSiteFirstCrawlStoresSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	first := f.crawl(t, "/1", "/2", "/3", "/4", "/5")

	assert.False(t, first.HasPrev())
	assert.Len(t, first.URLChunkIDs, 3)
	assert.NotNil(t, first.DiffToPrevCrawl)
	assert.Empty(t, first.DiffToPrevCrawl)
	assert.False(t, first.FinishedAt.IsZero())
	assert.Equal(t, 3, f.chunks.CountForCrawl(first.ID))
	assert.Equal(t, []string{first.ID}, f.chain(t))
	assert.Equal(t, []string{"/1", "/2", "/3", "/4", "/5"}, f.urlsAt(t, first.ID))
}

func TestCrawlSiteSubsequentCrawlStoresDiff(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	first := f.crawl(t, "/1", "/2")
	second := f.crawl(t, "/1", "/3")

	assert.Equal(t, first.ID, second.PrevCrawlID)
	assert.Empty(t, second.URLChunkIDs)
	assert.Equal(t, 0, f.chunks.CountForCrawl(second.ID))
	assert.ElementsMatch(t, []tracker.CrawlDiffItem{remove("/2"), add("/3")}, second.DiffToPrevCrawl)
	assert.Equal(t, []string{first.ID, second.ID}, f.chain(t))
	assert.True(t, second.FinishedAt.After(first.FinishedAt))
}

func TestCrawlSiteReplayAcrossChain(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	snapshots := [][]string{
		{"/a", "/b", "/c"},
		{"/a", "/c", "/d"},
		{"/d"},
		{},
		{"/a", "/e", "/f", "/g"},
	}
	var ids []string
	for i, urls := range snapshots {
		crawl := f.crawl(t, urls...)
		ids = append(ids, crawl.ID)
		if i > 0 {
			assert.ElementsMatch(t, ComputeDiff(urls, snapshots[i-1]), crawl.DiffToPrevCrawl, "crawl %d", i)
		}
	}
	for i, id := range ids {
		assert.ElementsMatch(t, snapshots[i], f.urlsAt(t, id), "crawl %d", i)
	}
}

func TestCrawlSiteCollapsesDuplicateLocs(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	first := f.crawl(t, "https://a.com/1", "https://a.com/1", "https://a.com/2")
	assert.Equal(t, []string{"https://a.com/1", "https://a.com/2"}, f.urlsAt(t, first.ID))

	second := f.crawl(t, "https://a.com/2", "https://a.com/2")
	assert.Equal(t, []tracker.CrawlDiffItem{remove("https://a.com/1")}, second.DiffToPrevCrawl)
	assert.Equal(t, []string{"https://a.com/2"}, f.urlsAt(t, second.ID))

	third := f.crawl(t, "https://a.com/2")
	assert.Empty(t, third.DiffToPrevCrawl)
	assert.Equal(t, []string{"https://a.com/2"}, f.urlsAt(t, third.ID))
}

func TestCrawlSiteFetchFailureLeavesNoState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	first := f.crawl(t, "/1")

	f.source.fail(testSitemap, &tracker.FetchError{URL: testSitemap, Err: errors.New("status 500")})
	_, err := f.mgr.CrawlSite(context.Background(), f.site)
	var fetchErr *tracker.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, testSitemap, fetchErr.URL)

	assert.Equal(t, 1, f.crawls.Len())
	assert.Equal(t, []string{first.ID}, f.chain(t))
}

func TestCrawlSiteRollsBackWhenSiteUpdateFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.sites.failUpdates.Store(true)
	f.source.set(testSitemap, "/1", "/2")

	_, err := f.mgr.CrawlSite(context.Background(), f.site)
	require.ErrorIs(t, err, tracker.ErrConflict)
	assert.Equal(t, 0, f.crawls.Len())
	// The first generated id is the crawl id.
	assert.Equal(t, 0, f.chunks.CountForCrawl("id-0001"))
	assert.Empty(t, f.chain(t))
}

func TestCrawlSiteRequiresSitemapURL(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	site, err := f.sites.CreateSite(context.Background(), tracker.Site{ID: "bare", UserID: testUser})
	require.NoError(t, err)

	_, err = f.mgr.CrawlSite(context.Background(), site)
	require.ErrorIs(t, err, tracker.ErrValidation)
}

func TestCrawlSiteSerializesSameSite(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.source.set(testSitemap, "/1", "/2")

	const runs = 8
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.mgr.CrawlSite(context.Background(), f.site)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	chain := f.chain(t)
	require.Len(t, chain, runs)
	assert.False(t, f.get(t, chain[0]).HasPrev())
	for i := 1; i < len(chain); i++ {
		crawl := f.get(t, chain[i])
		assert.Equal(t, chain[i-1], crawl.PrevCrawlID)
		assert.Empty(t, crawl.DiffToPrevCrawl)
	}
}

func TestUpdateURLCheckedStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.crawl(t, "/1", "/2")
	second := f.crawl(t, "/1", "/3")

	updated, ok, err := f.mgr.UpdateURLCheckedStatus(context.Background(), second.ID, "/3", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, updated.Version, second.Version)
	for _, item := range f.get(t, second.ID).DiffToPrevCrawl {
		assert.Equal(t, item.URL == "/3", item.Checked, item.URL)
	}

	_, ok, err = f.mgr.UpdateURLCheckedStatus(context.Background(), second.ID, "/unknown", true)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = f.mgr.UpdateURLCheckedStatus(context.Background(), "missing", "/3", true)
	require.ErrorIs(t, err, tracker.ErrNotFound)
}

var (
	u0 = []string{"/1", "/2"}
	u1 = []string{"/1", "/3"}
	u2 = []string{"/3", "/4"}
)

func threeCrawls(t *testing.T) (*fixture, []tracker.Crawl) {
	t.Helper()
	f := newFixture(t, 1)
	crawls := []tracker.Crawl{f.crawl(t, u0...), f.crawl(t, u1...), f.crawl(t, u2...)}
	return f, crawls
}

func TestDeleteCrawlHead(t *testing.T) {
	t.Parallel()

	f, crawls := threeCrawls(t)
	require.NoError(t, f.mgr.DeleteCrawl(context.Background(), crawls[0].ID, testUser))

	assert.Equal(t, []string{crawls[1].ID, crawls[2].ID}, f.chain(t))
	head := f.get(t, crawls[1].ID)
	assert.False(t, head.HasPrev())
	assert.Empty(t, head.DiffToPrevCrawl)
	assert.Len(t, head.URLChunkIDs, 2)
	assert.ElementsMatch(t, u1, f.urlsAt(t, head.ID))
	assert.ElementsMatch(t, u2, f.urlsAt(t, crawls[2].ID))
	assert.Equal(t, crawls[1].ID, f.get(t, crawls[2].ID).PrevCrawlID)

	assert.Equal(t, 0, f.chunks.CountForCrawl(crawls[0].ID))
	_, err := f.crawls.GetCrawl(context.Background(), crawls[0].ID)
	require.ErrorIs(t, err, tracker.ErrNotFound)
	assert.Equal(t, 2, f.crawls.Len())
}

func TestDeleteCrawlMiddle(t *testing.T) {
	t.Parallel()

	f, crawls := threeCrawls(t)
	require.NoError(t, f.mgr.DeleteCrawl(context.Background(), crawls[1].ID, testUser))

	assert.Equal(t, []string{crawls[0].ID, crawls[2].ID}, f.chain(t))
	tail := f.get(t, crawls[2].ID)
	assert.Equal(t, crawls[0].ID, tail.PrevCrawlID)
	assert.ElementsMatch(t, ComputeDiff(u2, u0), tail.DiffToPrevCrawl)
	assert.ElementsMatch(t, u2, f.urlsAt(t, tail.ID))
	assert.ElementsMatch(t, u0, f.urlsAt(t, crawls[0].ID))
}

func TestDeleteCrawlMiddleCancelsContradictions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	first := f.crawl(t, "/1")
	middle := f.crawl(t, "/1", "/2")
	last := f.crawl(t, "/1")

	_, ok, err := f.mgr.UpdateURLCheckedStatus(context.Background(), middle.ID, "/2", true)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.mgr.DeleteCrawl(context.Background(), middle.ID, testUser))
	tail := f.get(t, last.ID)
	assert.Equal(t, first.ID, tail.PrevCrawlID)
	assert.Empty(t, tail.DiffToPrevCrawl)
	assert.Equal(t, []string{"/1"}, f.urlsAt(t, last.ID))
}

func TestDeleteCrawlTail(t *testing.T) {
	t.Parallel()

	f, crawls := threeCrawls(t)
	before := f.get(t, crawls[1].ID)
	require.NoError(t, f.mgr.DeleteCrawl(context.Background(), crawls[2].ID, testUser))

	assert.Equal(t, []string{crawls[0].ID, crawls[1].ID}, f.chain(t))
	assert.Equal(t, before, f.get(t, crawls[1].ID))
	assert.ElementsMatch(t, u1, f.urlsAt(t, crawls[1].ID))
}

func TestDeleteCrawlOnlyCrawl(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	only := f.crawl(t, "/1", "/2")
	require.NoError(t, f.mgr.DeleteCrawl(context.Background(), only.ID, testUser))

	assert.Empty(t, f.chain(t))
	assert.Equal(t, 0, f.crawls.Len())
	assert.Equal(t, 0, f.chunks.CountForCrawl(only.ID))

	next := f.crawl(t, "/3")
	assert.False(t, next.HasPrev())
	assert.Len(t, next.URLChunkIDs, 1)
	assert.Equal(t, []string{"/3"}, f.urlsAt(t, next.ID))
}

func TestDeleteCrawlChecksOwnership(t *testing.T) {
	t.Parallel()

	f, crawls := threeCrawls(t)
	err := f.mgr.DeleteCrawl(context.Background(), crawls[1].ID, "intruder")
	require.ErrorIs(t, err, tracker.ErrUnauthorized)
	assert.Len(t, f.chain(t), 3)
	assert.Equal(t, 3, f.crawls.Len())

	err = f.mgr.DeleteCrawl(context.Background(), "missing", testUser)
	require.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestDeleteCrawlHeadRestoresSuccessorOnFailure(t *testing.T) {
	t.Parallel()

	f, crawls := threeCrawls(t)
	before := f.get(t, crawls[1].ID)

	f.sites.failUpdates.Store(true)
	err := f.mgr.DeleteCrawl(context.Background(), crawls[0].ID, testUser)
	require.ErrorIs(t, err, tracker.ErrConflict)
	f.sites.failUpdates.Store(false)

	restored := f.get(t, crawls[1].ID)
	assert.Equal(t, before.PrevCrawlID, restored.PrevCrawlID)
	assert.Equal(t, before.DiffToPrevCrawl, restored.DiffToPrevCrawl)
	assert.Empty(t, restored.URLChunkIDs)
	assert.Equal(t, 0, f.chunks.CountForCrawl(crawls[1].ID))
	assert.Len(t, f.chain(t), 3)
	assert.ElementsMatch(t, u2, f.urlsAt(t, crawls[2].ID))
}

func TestDeleteCrawlsForSite(t *testing.T) {
	t.Parallel()

	f, crawls := threeCrawls(t)
	require.NoError(t, f.mgr.DeleteCrawlsForSite(context.Background(), f.site.ID))

	assert.Empty(t, f.chain(t))
	assert.Equal(t, 0, f.crawls.Len())
	for _, c := range crawls {
		assert.Equal(t, 0, f.chunks.CountForCrawl(c.ID))
	}

	require.ErrorIs(t, f.mgr.DeleteCrawlsForSite(context.Background(), "missing"), tracker.ErrNotFound)
}

func TestListCrawlsInChainOrder(t *testing.T) {
	t.Parallel()

	f, crawls := threeCrawls(t)
	listed, err := f.mgr.ListCrawls(context.Background(), f.site.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i := range crawls {
		assert.Equal(t, crawls[i].ID, listed[i].ID)
	}
}

func TestCrawlUserSitesContinuesPastFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	broken := "https://broken.example.com/sitemap.xml"
	_, err := f.sites.CreateSite(context.Background(), tracker.Site{ID: "site-2", UserID: testUser, SitemapURL: broken})
	require.NoError(t, err)
	_, err = f.sites.CreateSite(context.Background(), tracker.Site{ID: "site-3", UserID: "someone-else", SitemapURL: testSitemap})
	require.NoError(t, err)

	f.source.set(testSitemap, "/1")
	f.source.fail(broken, &tracker.InvalidSitemapError{URL: broken})

	results, err := f.mgr.CrawlUserSites(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "site-1", results[0].Site.ID)
	require.NoError(t, results[0].Err)
	assert.NotEmpty(t, results[0].Crawl.ID)
	assert.Equal(t, "site-2", results[1].Site.ID)
	require.ErrorIs(t, results[1].Err, tracker.ErrInvalidSitemap)
}

func TestURLsAtUnknownCrawl(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	_, err := f.mgr.URLsAt(context.Background(), "missing")
	require.ErrorIs(t, err, tracker.ErrNotFound)
}
