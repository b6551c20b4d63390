package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

func TestCrawlStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewCrawlStore()
	ctx := context.Background()

	crawl := tracker.Crawl{
		ID:     "c1",
		SiteID: "s1",
		DiffToPrevCrawl: []tracker.CrawlDiffItem{
			{Action: tracker.ActionAdd, URL: "https://example.com/a"},
		},
	}
	created, err := store.CreateCrawl(ctx, crawl)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, 1, store.Len())

	_, err = store.CreateCrawl(ctx, crawl)
	require.ErrorIs(t, err, tracker.ErrConflict)

	created.DiffToPrevCrawl[0].Checked = true
	updated, err := store.UpdateCrawl(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = store.UpdateCrawl(ctx, created)
	require.ErrorIs(t, err, tracker.ErrConflict)

	got, err := store.GetCrawl(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.DiffToPrevCrawl[0].Checked)

	require.NoError(t, store.DeleteCrawl(ctx, "c1"))
	require.ErrorIs(t, store.DeleteCrawl(ctx, "c1"), tracker.ErrNotFound)
	_, err = store.GetCrawl(ctx, "c1")
	require.ErrorIs(t, err, tracker.ErrNotFound)
}
