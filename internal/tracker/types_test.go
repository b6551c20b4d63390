package tracker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	cases := map[string]Schedule{
		"":         ScheduleNone,
		"none":     ScheduleNone,
		"Daily":    ScheduleDaily,
		" weekly ": ScheduleWeekly,
		"MONTHLY":  ScheduleMonthly,
	}
	for raw, want := range cases {
		got, err := ParseSchedule(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseSchedule("hourly")
	require.ErrorIs(t, err, ErrValidation)
}

func TestSiteCloneIsDeep(t *testing.T) {
	t.Parallel()

	site := Site{ID: "s1", CrawlIDs: []string{"c1", "c2"}}
	cp := site.Clone()
	cp.CrawlIDs[0] = "changed"

	assert.Equal(t, "c1", site.CrawlIDs[0])
	assert.Equal(t, 1, site.CrawlIndex("c2"))
	assert.Equal(t, -1, site.CrawlIndex("missing"))

	last, ok := site.LastCrawlID()
	assert.True(t, ok)
	assert.Equal(t, "c2", last)

	_, ok = Site{}.LastCrawlID()
	assert.False(t, ok)
}

func TestCrawlEventCounts(t *testing.T) {
	t.Parallel()

	crawl := Crawl{
		ID:     "c2",
		SiteID: "s1",
		DiffToPrevCrawl: []CrawlDiffItem{
			{Action: ActionAdd, URL: "https://example.com/a"},
			{Action: ActionAdd, URL: "https://example.com/b"},
			{Action: ActionRemove, URL: "https://example.com/c"},
		},
	}
	event := NewCrawlEvent(crawl)
	assert.Equal(t, CrawlCompletedEvent, event.Type)
	assert.Equal(t, 2, event.Added)
	assert.Equal(t, 1, event.Removed)
	assert.Equal(t, "c2", event.CrawlID)
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	nested := &FetchError{URL: "https://example.com/nested.xml", Err: &InvalidSitemapError{URL: "https://example.com/nested.xml"}}
	wrapped := fmt.Errorf("crawl site: %w", nested)

	var fetchErr *FetchError
	require.True(t, errors.As(wrapped, &fetchErr))
	assert.Equal(t, "https://example.com/nested.xml", fetchErr.URL)
	assert.ErrorIs(t, wrapped, ErrInvalidSitemap)
	assert.Contains(t, wrapped.Error(), "document is not XML")
}
