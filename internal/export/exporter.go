// Package export writes reconstructed crawl URL sets to blob storage.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// DefaultContentType is used when Config.ContentType is empty.
const DefaultContentType = "text/plain; charset=utf-8"

// Source rebuilds the URL set of a crawl.
type Source interface {
	GetCrawl(ctx context.Context, crawlID string) (tracker.Crawl, error)
	URLsAt(ctx context.Context, crawlID string) ([]string, error)
}

// LineHasher fingerprints a newline-terminated URL list.
type LineHasher interface {
	HashLines(lines []string) (string, error)
}

// Config controls object naming.
type Config struct {
	Prefix      string
	ContentType string
}

// Result describes a written export.
type Result struct {
	URI    string `json:"uri"`
	Path   string `json:"path"`
	Digest string `json:"sha256"`
	URLs   int    `json:"urls"`
}

// Exporter uploads URL sets as one URL per line.
type Exporter struct {
	source Source
	blobs  tracker.BlobStore
	hasher LineHasher
	cfg    Config
	logger *zap.Logger
}

// New builds an Exporter.
func New(source Source, blobs tracker.BlobStore, hasher LineHasher, cfg Config, logger *zap.Logger) *Exporter {
	if cfg.ContentType == "" {
		cfg.ContentType = DefaultContentType
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{source: source, blobs: blobs, hasher: hasher, cfg: cfg, logger: logger}
}

// ExportCrawl writes the URL set at crawlID to
// <prefix>/<site_id>/<crawl_id>-<sha256>.txt and returns where it landed.
// Identical sets map to the same object.
func (e *Exporter) ExportCrawl(ctx context.Context, crawlID string) (Result, error) {
	crawl, err := e.source.GetCrawl(ctx, crawlID)
	if err != nil {
		return Result{}, err
	}
	urls, err := e.source.URLsAt(ctx, crawlID)
	if err != nil {
		return Result{}, fmt.Errorf("rebuild urls for crawl %s: %w", crawlID, err)
	}
	digest, err := e.hasher.HashLines(urls)
	if err != nil {
		return Result{}, fmt.Errorf("hash urls: %w", err)
	}

	var buf bytes.Buffer
	for _, u := range urls {
		buf.WriteString(u)
		buf.WriteByte('\n')
	}

	objectPath := ObjectPath(e.cfg.Prefix, crawl.SiteID, crawl.ID, digest)
	uri, err := e.blobs.PutObject(ctx, objectPath, e.cfg.ContentType, &buf)
	if err != nil {
		return Result{}, fmt.Errorf("upload export %s: %w", objectPath, err)
	}
	e.logger.Info("crawl exported",
		zap.String("site_id", crawl.SiteID),
		zap.String("crawl_id", crawl.ID),
		zap.String("uri", uri),
		zap.Int("urls", len(urls)),
	)
	return Result{URI: uri, Path: objectPath, Digest: digest, URLs: len(urls)}, nil
}

// ObjectPath names an export object.
func ObjectPath(prefix, siteID, crawlID, digest string) string {
	return path.Join(prefix, siteID, crawlID+"-"+digest+".txt")
}
