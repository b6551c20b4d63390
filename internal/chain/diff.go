// Package chain stores a site's crawl history as one chunked snapshot plus a
// chain of add/remove diffs, and repairs that chain when crawls are deleted.
package chain

import (
	"slices"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// ComputeDiff returns the items that turn previous into current. Adds come
// first in current's order, then removes in previous's order. Duplicate URLs
// in either input are reported once. Every item starts unchecked.
func ComputeDiff(current, previous []string) []tracker.CrawlDiffItem {
	currentSet := toSet(current)
	previousSet := toSet(previous)

	diff := make([]tracker.CrawlDiffItem, 0)
	seen := make(map[string]struct{})
	for _, u := range current {
		if _, ok := previousSet[u]; ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		diff = append(diff, tracker.CrawlDiffItem{Action: tracker.ActionAdd, URL: u})
	}
	clear(seen)
	for _, u := range previous {
		if _, ok := currentSet[u]; ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		diff = append(diff, tracker.CrawlDiffItem{Action: tracker.ActionRemove, URL: u})
	}
	return diff
}

// ApplyDiff replays diff on top of base. Adds append without deduplication;
// removes drop the first occurrence and ignore URLs that are absent.
// base is not modified.
func ApplyDiff(base []string, diff []tracker.CrawlDiffItem) []string {
	out := slices.Clone(base)
	for _, item := range diff {
		switch item.Action {
		case tracker.ActionAdd:
			out = append(out, item.URL)
		case tracker.ActionRemove:
			if i := slices.Index(out, item.URL); i >= 0 {
				out = slices.Delete(out, i, i+1)
			}
		}
	}
	return out
}

// mergeAdjacent folds the diff of a deleted middle crawl into its successor's
// diff. An add and a remove of the same URL cancel out; two items with the
// same action collapse into one that is checked if either was. Insertion
// order is kept.
func mergeAdjacent(older, newer []tracker.CrawlDiffItem) []tracker.CrawlDiffItem {
	items := make([]tracker.CrawlDiffItem, 0, len(older)+len(newer))
	live := make([]bool, 0, len(older)+len(newer))
	index := make(map[string]int, len(older)+len(newer))

	insert := func(item tracker.CrawlDiffItem) {
		index[item.URL] = len(items)
		items = append(items, item)
		live = append(live, true)
	}

	for _, item := range older {
		if i, ok := index[item.URL]; ok {
			items[i] = item
			continue
		}
		insert(item)
	}
	for _, item := range newer {
		i, ok := index[item.URL]
		switch {
		case !ok:
			insert(item)
		case items[i].Action != item.Action:
			live[i] = false
			delete(index, item.URL)
		default:
			items[i].Checked = items[i].Checked || item.Checked
		}
	}

	merged := make([]tracker.CrawlDiffItem, 0, len(index))
	for i, item := range items {
		if live[i] {
			merged = append(merged, item)
		}
	}
	return merged
}

// uniqueURLs drops repeated URLs, keeping the first occurrence of each.
func uniqueURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func toSet(urls []string) map[string]struct{} {
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return set
}
