package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

func add(url string) tracker.CrawlDiffItem {
	return tracker.CrawlDiffItem{Action: tracker.ActionAdd, URL: url}
}

func remove(url string) tracker.CrawlDiffItem {
	return tracker.CrawlDiffItem{Action: tracker.ActionRemove, URL: url}
}

func TestComputeDiffIdentical(t *testing.T) {
	t.Parallel()

	urls := []string{"/a", "/b", "/c"}
	assert.Empty(t, ComputeDiff(urls, urls))
}

func TestComputeDiffAgainstEmpty(t *testing.T) {
	t.Parallel()

	urls := []string{"/a", "/b"}
	assert.Equal(t, []tracker.CrawlDiffItem{add("/a"), add("/b")}, ComputeDiff(urls, nil))
	assert.Equal(t, []tracker.CrawlDiffItem{remove("/a"), remove("/b")}, ComputeDiff(nil, urls))
}

func TestComputeDiffOrderAndDuplicates(t *testing.T) {
	t.Parallel()

	current := []string{"/1", "/3", "/3", "/4"}
	previous := []string{"/2", "/1", "/2", "/5"}
	assert.Equal(t, []tracker.CrawlDiffItem{
		add("/3"), add("/4"), remove("/2"), remove("/5"),
	}, ComputeDiff(current, previous))
}

func TestComputeDiffScenario(t *testing.T) {
	t.Parallel()

	diff := ComputeDiff([]string{"/1", "/3"}, []string{"/1", "/2"})
	assert.ElementsMatch(t, []tracker.CrawlDiffItem{remove("/2"), add("/3")}, diff)
	for _, item := range diff {
		assert.False(t, item.Checked)
	}
}

func TestApplyDiffRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		previous []string
		current  []string
	}{
		{"grow", []string{"/a"}, []string{"/a", "/b", "/c"}},
		{"shrink", []string{"/a", "/b", "/c"}, []string{"/b"}},
		{"replace", []string{"/a", "/b"}, []string{"/c", "/d"}},
		{"from empty", nil, []string{"/x"}},
		{"to empty", []string{"/x"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ApplyDiff(tc.previous, ComputeDiff(tc.current, tc.previous))
			assert.ElementsMatch(t, tc.current, got)
		})
	}
}

func TestApplyDiffSemantics(t *testing.T) {
	t.Parallel()

	base := []string{"/a", "/b", "/a"}
	got := ApplyDiff(base, []tracker.CrawlDiffItem{remove("/a"), add("/b"), remove("/missing")})
	assert.Equal(t, []string{"/b", "/a", "/b"}, got)
	assert.Equal(t, []string{"/a", "/b", "/a"}, base, "base must not be modified")
}

func TestMergeAdjacentContradictionCancels(t *testing.T) {
	t.Parallel()

	merged := mergeAdjacent([]tracker.CrawlDiffItem{add("/x")}, []tracker.CrawlDiffItem{remove("/x")})
	assert.Empty(t, merged)

	merged = mergeAdjacent([]tracker.CrawlDiffItem{remove("/x")}, []tracker.CrawlDiffItem{add("/x")})
	assert.Empty(t, merged)
}

func TestMergeAdjacentSameActionKeepsChecked(t *testing.T) {
	t.Parallel()

	older := []tracker.CrawlDiffItem{{Action: tracker.ActionAdd, URL: "/x", Checked: false}}
	newer := []tracker.CrawlDiffItem{{Action: tracker.ActionAdd, URL: "/x", Checked: true}}
	assert.Equal(t, []tracker.CrawlDiffItem{{Action: tracker.ActionAdd, URL: "/x", Checked: true}},
		mergeAdjacent(older, newer))

	older[0].Checked = true
	newer[0].Checked = false
	assert.Equal(t, []tracker.CrawlDiffItem{{Action: tracker.ActionAdd, URL: "/x", Checked: true}},
		mergeAdjacent(older, newer))
}

func TestMergeAdjacentPreservesOrder(t *testing.T) {
	t.Parallel()

	older := []tracker.CrawlDiffItem{add("/a"), add("/b"), remove("/c")}
	newer := []tracker.CrawlDiffItem{add("/d"), remove("/a"), remove("/e")}
	assert.Equal(t, []tracker.CrawlDiffItem{add("/b"), remove("/c"), add("/d"), remove("/e")},
		mergeAdjacent(older, newer))
}

func TestMergeAdjacentMatchesDirectDiff(t *testing.T) {
	t.Parallel()

	u0 := []string{"/1", "/2", "/3"}
	u1 := []string{"/2", "/3", "/4"}
	u2 := []string{"/1", "/3", "/4", "/5"}

	merged := mergeAdjacent(ComputeDiff(u1, u0), ComputeDiff(u2, u1))
	assert.ElementsMatch(t, ComputeDiff(u2, u0), merged)
	assert.ElementsMatch(t, u2, ApplyDiff(u0, merged))
}

func TestUniqueURLsKeepsFirstSeenOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"/b", "/a", "/c"}, uniqueURLs([]string{"/b", "/a", "/b", "/c", "/a"}))
	assert.Empty(t, uniqueURLs(nil))
}
