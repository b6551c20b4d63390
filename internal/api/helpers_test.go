package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/chain"
	"github.com/JakeFAU/sitemap-tracker/internal/config"
	"github.com/JakeFAU/sitemap-tracker/internal/export"
	"github.com/JakeFAU/sitemap-tracker/internal/hash/sha256"
	"github.com/JakeFAU/sitemap-tracker/internal/storage/memory"
	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("id-%04d", s.n.Add(1)), nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type stubSource struct {
	mu   sync.Mutex
	urls map[string][]string
	err  error
}

func (s *stubSource) set(sitemapURL string, urls ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[sitemapURL] = urls
}

func (s *stubSource) FetchURLs(_ context.Context, sitemapURL string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]string(nil), s.urls[sitemapURL]...), nil
}

type stubFinder struct {
	url string
	err error
}

func (f stubFinder) FindSitemapURL(context.Context, string) (string, error) {
	return f.url, f.err
}

type recordingQueue struct {
	mu   sync.Mutex
	reqs []tracker.CrawlRequest
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, req tracker.CrawlRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.reqs = append(q.reqs, req)
	return nil
}

type harness struct {
	server *Server
	sites  *memory.SiteStore
	blobs  *memory.BlobStore
	source *stubSource
	queue  *recordingQueue
}

const (
	owner    = "user-1"
	stranger = "user-2"
	siteID   = "site-1"
	mapURL   = "https://example.com/sitemap.xml"
)

func newHarness(t *testing.T, mutate ...func(*config.Config, *Deps)) *harness {
	t.Helper()

	sites := memory.NewSiteStore()
	_, err := sites.CreateSite(context.Background(), tracker.Site{
		ID:         siteID,
		Name:       "Example",
		BaseURL:    "https://example.com",
		SitemapURL: mapURL,
		UserID:     owner,
	})
	require.NoError(t, err)

	source := &stubSource{urls: map[string][]string{}}
	clock := fixedClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	manager := chain.NewManager(sites, memory.NewCrawlStore(), memory.NewChunkStore(), source, clock, &seqIDs{}, chain.Config{}, zap.NewNop())
	blobs := memory.NewBlobStore()
	queue := &recordingQueue{}

	deps := Deps{
		Tracker:  manager,
		Finder:   stubFinder{url: mapURL},
		Exporter: export.New(manager, blobs, sha256.New(), export.Config{Prefix: "exports"}, nil),
		Queue:    queue,
		Clock:    clock,
	}
	cfg := config.Config{}
	for _, m := range mutate {
		m(&cfg, &deps)
	}
	return &harness{
		server: NewServer(deps, cfg, zap.NewNop()),
		sites:  sites,
		blobs:  blobs,
		source: source,
		queue:  queue,
	}
}

func (h *harness) do(t *testing.T, method, target, user, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}
