package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

func TestSiteStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewSiteStore()
	ctx := context.Background()

	created, err := store.CreateSite(ctx, tracker.Site{ID: "s1", UserID: "u1", CrawlSchedule: tracker.ScheduleDaily})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.NotNil(t, created.CrawlIDs)

	_, err = store.CreateSite(ctx, tracker.Site{ID: "s1"})
	require.ErrorIs(t, err, tracker.ErrConflict)

	created.CrawlIDs = append(created.CrawlIDs, "c1")
	updated, err := store.UpdateSite(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	// created still carries version 1.
	_, err = store.UpdateSite(ctx, created)
	require.ErrorIs(t, err, tracker.ErrConflict)

	got, err := store.GetSite(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, got.CrawlIDs)

	got.CrawlIDs[0] = "mutated"
	again, err := store.GetSite(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "c1", again.CrawlIDs[0])

	_, err = store.GetSite(ctx, "missing")
	require.ErrorIs(t, err, tracker.ErrNotFound)
	_, err = store.UpdateSite(ctx, tracker.Site{ID: "missing"})
	require.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestSiteStoreListings(t *testing.T) {
	t.Parallel()

	store := NewSiteStore()
	ctx := context.Background()
	for _, site := range []tracker.Site{
		{ID: "b", UserID: "u1", CrawlSchedule: tracker.ScheduleWeekly},
		{ID: "a", UserID: "u1", CrawlSchedule: tracker.ScheduleWeekly},
		{ID: "c", UserID: "u2", CrawlSchedule: tracker.ScheduleDaily},
	} {
		_, err := store.CreateSite(ctx, site)
		require.NoError(t, err)
	}

	weekly, err := store.ListSitesBySchedule(ctx, tracker.ScheduleWeekly)
	require.NoError(t, err)
	require.Len(t, weekly, 2)
	assert.Equal(t, "a", weekly[0].ID)
	assert.Equal(t, "b", weekly[1].ID)

	mine, err := store.ListSitesByUser(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "c", mine[0].ID)

	none, err := store.ListSitesBySchedule(ctx, tracker.ScheduleMonthly)
	require.NoError(t, err)
	assert.Empty(t, none)
}
