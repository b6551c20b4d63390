package tracker

import (
	"context"
	"io"
	"time"
)

// SiteStore persists sites. UpdateSite fails with ErrConflict when the stored
// version differs from site.Version and returns the site with its new version.
type SiteStore interface {
	CreateSite(ctx context.Context, site Site) (Site, error)
	GetSite(ctx context.Context, siteID string) (Site, error)
	UpdateSite(ctx context.Context, site Site) (Site, error)
	ListSitesBySchedule(ctx context.Context, schedule Schedule) ([]Site, error)
	ListSitesByUser(ctx context.Context, userID string) ([]Site, error)
}

// CrawlStore persists crawls with the same version semantics as SiteStore.
type CrawlStore interface {
	CreateCrawl(ctx context.Context, crawl Crawl) (Crawl, error)
	GetCrawl(ctx context.Context, crawlID string) (Crawl, error)
	UpdateCrawl(ctx context.Context, crawl Crawl) (Crawl, error)
	DeleteCrawl(ctx context.Context, crawlID string) error
}

// ChunkRepository persists URL chunks.
type ChunkRepository interface {
	SaveChunks(ctx context.Context, chunks []URLChunk) error
	GetChunk(ctx context.Context, chunkID string) (URLChunk, error)
	DeleteChunksByCrawl(ctx context.Context, crawlID string) error
}

// SitemapSource resolves a sitemap URL into the flat list of URLs it lists.
type SitemapSource interface {
	FetchURLs(ctx context.Context, sitemapURL string) ([]string, error)
}

// BlobStore writes exported artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes crawl events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notifier tells a site owner about a finished crawl.
type Notifier interface {
	NotifyCrawl(ctx context.Context, site Site, crawl Crawl, prev *Crawl) error
}

// Queue provides enqueue/dequeue semantics for crawl requests.
type Queue interface {
	Enqueue(ctx context.Context, req CrawlRequest) error
	Dequeue(ctx context.Context) (CrawlRequest, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque string ids.
type IDGenerator interface {
	NewID() (string, error)
}
