// Package tracker defines the shared domain types for sitemap tracking.
package tracker

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Schedule controls how often a site is crawled by the scheduler.
type Schedule string

const (
	// ScheduleNone disables scheduled crawls.
	ScheduleNone Schedule = "none"
	// ScheduleDaily crawls every day at midnight.
	ScheduleDaily Schedule = "daily"
	// ScheduleWeekly crawls every Monday at midnight.
	ScheduleWeekly Schedule = "weekly"
	// ScheduleMonthly crawls on the first of the month at midnight.
	ScheduleMonthly Schedule = "monthly"
)

// ParseSchedule normalizes a schedule name. An empty value maps to ScheduleNone.
func ParseSchedule(raw string) (Schedule, error) {
	switch Schedule(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ScheduleNone:
		return ScheduleNone, nil
	case ScheduleDaily:
		return ScheduleDaily, nil
	case ScheduleWeekly:
		return ScheduleWeekly, nil
	case ScheduleMonthly:
		return ScheduleMonthly, nil
	default:
		return "", fmt.Errorf("%w: unknown crawl schedule %q", ErrValidation, raw)
	}
}

// Site is a tracked website. CrawlIDs is the diff chain in chronological order.
type Site struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	BaseURL           string    `json:"base_url"`
	SitemapURL        string    `json:"sitemap_url"`
	UserID            string    `json:"user_id"`
	CrawlSchedule     Schedule  `json:"crawl_schedule"`
	NotificationEmail string    `json:"notification_email,omitempty"`
	CrawlIDs          []string  `json:"crawl_ids"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
}

// Clone returns a deep copy of the site.
func (s Site) Clone() Site {
	cp := s
	cp.CrawlIDs = slices.Clone(s.CrawlIDs)
	return cp
}

// CrawlIndex returns the chain position of crawlID or -1.
func (s Site) CrawlIndex(crawlID string) int {
	return slices.Index(s.CrawlIDs, crawlID)
}

// LastCrawlID returns the newest crawl in the chain, if any.
func (s Site) LastCrawlID() (string, bool) {
	if len(s.CrawlIDs) == 0 {
		return "", false
	}
	return s.CrawlIDs[len(s.CrawlIDs)-1], true
}

// DiffAction marks whether a URL appeared or disappeared between crawls.
type DiffAction string

const (
	// ActionAdd marks a URL present now but not in the previous crawl.
	ActionAdd DiffAction = "add"
	// ActionRemove marks a URL present in the previous crawl but gone now.
	ActionRemove DiffAction = "remove"
)

// CrawlDiffItem is one entry of a crawl's diff against its predecessor.
type CrawlDiffItem struct {
	Action  DiffAction `json:"action"`
	URL     string     `json:"url"`
	Checked bool       `json:"checked"`
}

func (i CrawlDiffItem) String() string {
	return fmt.Sprintf("%s %s (checked: %t)", i.Action, i.URL, i.Checked)
}

// Crawl is one snapshot in a site's chain. The first crawl of a chain holds
// the full URL set in chunks; every later crawl only stores its diff.
type Crawl struct {
	ID              string          `json:"id"`
	SiteID          string          `json:"site_id"`
	FinishedAt      time.Time       `json:"finished_at"`
	PrevCrawlID     string          `json:"prev_crawl_id,omitempty"`
	URLChunkIDs     []string        `json:"url_chunk_ids"`
	DiffToPrevCrawl []CrawlDiffItem `json:"diff_to_prev_crawl"`
	Version         int64           `json:"version"`
}

// Clone returns a deep copy of the crawl.
func (c Crawl) Clone() Crawl {
	cp := c
	cp.URLChunkIDs = slices.Clone(c.URLChunkIDs)
	cp.DiffToPrevCrawl = slices.Clone(c.DiffToPrevCrawl)
	return cp
}

// HasPrev reports whether the crawl links to a predecessor.
func (c Crawl) HasPrev() bool {
	return c.PrevCrawlID != ""
}

// DiffCounts returns the number of add and remove items in the diff.
func (c Crawl) DiffCounts() (added, removed int) {
	for _, item := range c.DiffToPrevCrawl {
		switch item.Action {
		case ActionAdd:
			added++
		case ActionRemove:
			removed++
		}
	}
	return added, removed
}

// URLChunk is one page of a snapshot crawl's URL set.
type URLChunk struct {
	ID      string   `json:"id"`
	CrawlID string   `json:"crawl_id"`
	URLs    []string `json:"urls"`
}

// CrawlEvent is published after every successful crawl.
type CrawlEvent struct {
	Type       string    `json:"type"`
	SiteID     string    `json:"site_id"`
	CrawlID    string    `json:"crawl_id"`
	FinishedAt time.Time `json:"finished_at"`
	Added      int       `json:"added"`
	Removed    int       `json:"removed"`
}

// CrawlCompletedEvent is the event type for CrawlEvent.
const CrawlCompletedEvent = "crawl.completed"

// NewCrawlEvent summarizes a finished crawl.
func NewCrawlEvent(crawl Crawl) CrawlEvent {
	added, removed := crawl.DiffCounts()
	return CrawlEvent{
		Type:       CrawlCompletedEvent,
		SiteID:     crawl.SiteID,
		CrawlID:    crawl.ID,
		FinishedAt: crawl.FinishedAt,
		Added:      added,
		Removed:    removed,
	}
}

// CrawlRequest asks a worker to crawl one site.
type CrawlRequest struct {
	SiteID    string
	Trigger   string
	Submitted int64
}
