package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/metrics"
	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

const (
	// DefaultMaxDepth bounds how many sitemap indexes may be nested below the root.
	DefaultMaxDepth = 5
	// DefaultMaxSitemaps bounds how many documents one crawl may fetch.
	DefaultMaxSitemaps = 1000
)

// Fetcher downloads a single document.
type Fetcher interface {
	Fetch(ctx context.Context, request tracker.FetchRequest) (tracker.FetchResponse, error)
}

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Config bounds sitemap resolution.
type Config struct {
	MaxDepth    int
	MaxSitemaps int
}

// Resolver walks a sitemap and its nested sitemap indexes.
type Resolver struct {
	fetcher Fetcher
	limiter Limiter
	cfg     Config
	logger  *zap.Logger
}

// NewResolver builds a Resolver. limiter may be nil.
func NewResolver(fetcher Fetcher, limiter Limiter, cfg Config, logger *zap.Logger) *Resolver {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxSitemaps <= 0 {
		cfg.MaxSitemaps = DefaultMaxSitemaps
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fetcher: fetcher,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

type pending struct {
	url   string
	depth int
}

// FetchURLs returns every <loc> found in sitemapURL and in the sitemaps it
// references, in breadth-first document order. Each nested sitemap is fetched
// at most once. Any failing document aborts the whole walk; failures below the
// root are reported as a FetchError naming the nested URL.
func (r *Resolver) FetchURLs(ctx context.Context, sitemapURL string) ([]string, error) {
	queue := []pending{{url: sitemapURL}}
	visited := map[string]struct{}{sitemapURL: {}}
	urls := make([]string, 0)
	fetched := 0

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		if fetched >= r.cfg.MaxSitemaps {
			return nil, &tracker.FetchError{
				URL: next.url,
				Err: fmt.Errorf("%w: more than %d sitemap documents", tracker.ErrSitemapLimit, r.cfg.MaxSitemaps),
			}
		}
		fetched++

		content, err := r.Fetch(ctx, next.url)
		if err != nil {
			return nil, err
		}
		if !IsXML(content) {
			metrics.ObserveSitemapFetch(next.url, "invalid")
			invalid := &tracker.InvalidSitemapError{URL: next.url}
			if next.depth == 0 {
				return nil, invalid
			}
			return nil, &tracker.FetchError{URL: next.url, Err: invalid}
		}

		locs, nested := ExtractURLs(content)
		urls = append(urls, locs...)
		for _, ref := range nested {
			abs := absolute(next.url, ref)
			if _, seen := visited[abs]; seen {
				r.logger.Debug("nested sitemap already visited", zap.String("sitemap_url", abs))
				continue
			}
			if next.depth+1 > r.cfg.MaxDepth {
				return nil, &tracker.FetchError{
					URL: abs,
					Err: fmt.Errorf("%w: nesting deeper than %d", tracker.ErrSitemapLimit, r.cfg.MaxDepth),
				}
			}
			visited[abs] = struct{}{}
			queue = append(queue, pending{url: abs, depth: next.depth + 1})
		}
	}

	r.logger.Debug("sitemap resolved",
		zap.String("sitemap_url", sitemapURL),
		zap.Int("documents", fetched),
		zap.Int("urls", len(urls)),
	)
	return urls, nil
}

// Fetch downloads one document and returns its text. Documents whose URL path
// ends in ".gz" are decompressed. Every failure is a FetchError.
func (r *Resolver) Fetch(ctx context.Context, rawURL string) (string, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, rawURL); err != nil {
			return "", &tracker.FetchError{URL: rawURL, Err: err}
		}
	}
	resp, err := r.fetcher.Fetch(ctx, tracker.FetchRequest{
		URL:     rawURL,
		Headers: http.Header{"Accept": {"application/xml"}},
	})
	if err != nil {
		metrics.ObserveSitemapFetch(rawURL, "error")
		return "", &tracker.FetchError{URL: rawURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveSitemapFetch(rawURL, "status")
		return "", &tracker.FetchError{URL: rawURL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	body := resp.Body
	if isGzipURL(rawURL) {
		body, err = gunzip(body)
		if err != nil {
			metrics.ObserveSitemapFetch(rawURL, "error")
			return "", &tracker.FetchError{URL: rawURL, Err: err}
		}
	}
	metrics.ObserveSitemapFetch(rawURL, "ok")
	return string(body), nil
}

// FindSitemapURL probes https and http, with and without "www.", for a
// /sitemap.xml that serves XML. The first match wins.
func (r *Resolver) FindSitemapURL(ctx context.Context, baseURL string) (string, error) {
	host := bareHost(baseURL)
	if host == "" {
		return "", fmt.Errorf("%w: base url is required", tracker.ErrValidation)
	}
	for _, scheme := range []string{"https://", "http://"} {
		for _, sub := range []string{"www.", ""} {
			candidate := scheme + sub + host + "/sitemap.xml"
			if ctx.Err() != nil {
				return "", fmt.Errorf("find sitemap: %w", ctx.Err())
			}
			content, err := r.Fetch(ctx, candidate)
			if err != nil {
				r.logger.Debug("sitemap probe failed", zap.String("sitemap_url", candidate), zap.Error(err))
				continue
			}
			if IsXML(content) {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("no sitemap found for %s: %w", baseURL, tracker.ErrNotFound)
}

func bareHost(baseURL string) string {
	host := strings.TrimSpace(baseURL)
	host = strings.TrimSuffix(host, "/")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")
	return strings.TrimPrefix(host, "www.")
}

func isGzipURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(rawURL, ".gz")
	}
	return strings.HasSuffix(u.Path, ".gz")
}

// gunzip inflates data. Bodies already inflated by the transport pass through.
func gunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close() //nolint:errcheck // read-only stream
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip stream: %w", err)
	}
	return out, nil
}

// absolute resolves ref against the document it was found in.
func absolute(base, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil || refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
