package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-tracker/internal/config"
)

func TestBuildCrawlsSeededSite(t *testing.T) {
	pages := map[string]string{
		"/sitemap.xml": `<?xml version="1.0"?><sitemapindex><sitemap><loc>/posts.xml</loc></sitemap></sitemapindex>`,
		"/posts.xml":   `<?xml version="1.0"?><urlset><url><loc>https://example.com/a</loc></url></urlset>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Logging.Development = false
	cfg.Logging.Level = "error"
	cfg.Scheduler.Enabled = false
	cfg.Sitemap.RatePerSecond = 0
	cfg.SeedSites = []config.SeedSite{{
		ID:         "site-1",
		BaseURL:    srv.URL,
		SitemapURL: srv.URL + "/sitemap.xml",
		UserID:     "user-1",
	}}

	app, err := Build(context.Background(), &cfg)
	require.NoError(t, err)
	defer func() { _ = app.Close() }()

	crawl, err := app.CrawlSite(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, "site-1", crawl.SiteID)
	assert.False(t, crawl.HasPrev())

	urls, err := app.manager.URLsAt(context.Background(), crawl.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"/posts.xml", "https://example.com/a"}, urls)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/crawls/"+crawl.ID, nil)
	req.Header.Set("X-User-ID", "user-1")
	app.apiServer.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildRejectsUnknownTimezone(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Logging.Level = "error"
	cfg.Scheduler.Timezone = "Mars/Olympus_Mons"

	_, err = Build(context.Background(), &cfg)
	require.ErrorContains(t, err, "scheduler timezone")
}
