// Package worker runs queued crawl requests: crawl, publish, notify.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/metrics"
	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// Crawler is the slice of the chain manager a worker needs.
type Crawler interface {
	GetSite(ctx context.Context, siteID string) (tracker.Site, error)
	GetCrawl(ctx context.Context, crawlID string) (tracker.Crawl, error)
	CrawlSite(ctx context.Context, site tracker.Site) (tracker.Crawl, error)
}

// Config controls Worker behavior.
type Config struct {
	Topic        string
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Worker consumes crawl requests until its context ends.
type Worker struct {
	queue     tracker.Queue
	crawler   Crawler
	publisher tracker.Publisher
	notifier  tracker.Notifier
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher and notifier may be nil.
func New(
	queue tracker.Queue,
	crawler Crawler,
	publisher tracker.Publisher,
	notifier tracker.Notifier,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		crawler:   crawler,
		publisher: publisher,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming requests until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, tracker.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued crawl request", zap.String("site_id", req.SiteID), zap.String("trigger", req.Trigger))
		metrics.IncActiveWorkers()
		w.Process(ctx, req)
		metrics.DecActiveWorkers()
	}
}

// Process runs one request. Failures are logged, never returned.
func (w *Worker) Process(ctx context.Context, req tracker.CrawlRequest) {
	if _, err := w.Handle(ctx, req); err != nil {
		w.logger.Error("crawl request failed",
			zap.String("site_id", req.SiteID),
			zap.String("trigger", req.Trigger),
			zap.Error(err),
		)
	}
}

// Handle crawls the requested site, then publishes the event and notifies the
// owner. Only load and crawl failures are returned; publish and notification
// failures are logged.
func (w *Worker) Handle(ctx context.Context, req tracker.CrawlRequest) (tracker.Crawl, error) {
	logger := w.logger.With(zap.String("site_id", req.SiteID))
	site, err := w.crawler.GetSite(ctx, req.SiteID)
	if err != nil {
		return tracker.Crawl{}, fmt.Errorf("load site: %w", err)
	}
	crawl, err := w.crawlWithRetry(ctx, site, logger)
	if err != nil {
		return tracker.Crawl{}, err
	}
	logger = logger.With(zap.String("crawl_id", crawl.ID))

	if err := w.publish(ctx, crawl); err != nil {
		logger.Error("publish crawl event failed", zap.Error(err))
	}
	w.notify(ctx, site, crawl, logger)
	return crawl, nil
}

func (w *Worker) crawlWithRetry(ctx context.Context, site tracker.Site, logger *zap.Logger) (tracker.Crawl, error) {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		crawl, err := w.crawler.CrawlSite(ctx, site)
		if err == nil {
			return crawl, nil
		}
		lastErr = err
		if !retryable(err) || attempt == w.cfg.MaxAttempts {
			break
		}
		logger.Warn("crawl attempt failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return tracker.Crawl{}, fmt.Errorf("crawl retry canceled: %w", ctx.Err())
		case <-time.After(w.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return tracker.Crawl{}, lastErr
}

// retryable reports whether err is a transport-level fetch failure. Invalid
// documents and exceeded limits fail the same way on every attempt.
func retryable(err error) bool {
	var fetchErr *tracker.FetchError
	if !errors.As(err, &fetchErr) {
		return false
	}
	return !errors.Is(err, tracker.ErrInvalidSitemap) && !errors.Is(err, tracker.ErrSitemapLimit)
}

func (w *Worker) publish(ctx context.Context, crawl tracker.Crawl) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, tracker.NewCrawlEvent(crawl)); err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	return nil
}

func (w *Worker) notify(ctx context.Context, site tracker.Site, crawl tracker.Crawl, logger *zap.Logger) {
	if w.notifier == nil || site.NotificationEmail == "" {
		metrics.ObserveNotification("skipped")
		return
	}
	var prev *tracker.Crawl
	if crawl.HasPrev() {
		p, err := w.crawler.GetCrawl(ctx, crawl.PrevCrawlID)
		if err != nil {
			logger.Warn("load previous crawl failed", zap.Error(err))
		} else {
			prev = &p
		}
	}
	if err := w.notifier.NotifyCrawl(ctx, site, crawl, prev); err != nil {
		metrics.ObserveNotification("failed")
		logger.Error("crawl notification failed", zap.Error(err))
		return
	}
	metrics.ObserveNotification("sent")
	logger.Info("crawl notification sent", zap.String("email", site.NotificationEmail))
}
