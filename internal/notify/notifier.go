package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier emails crawl results to the site's notification address.
type Notifier struct {
	sender Sender
	logger *zap.Logger
}

// New builds a Notifier.
func New(sender Sender, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sender: sender, logger: logger}
}

// NotifyCrawl sends the crawl result email. Sites without a valid address are
// skipped with a log line, not an error.
func (n *Notifier) NotifyCrawl(ctx context.Context, site tracker.Site, crawl tracker.Crawl, prev *tracker.Crawl) error {
	if !ValidAddress(site.NotificationEmail) {
		n.logger.Warn("invalid notification address, skipping",
			zap.String("site_id", site.ID),
			zap.String("email", site.NotificationEmail),
		)
		return nil
	}
	msg, err := BuildCrawlMessage(site, crawl, prev)
	if err != nil {
		return fmt.Errorf("build crawl message: %w", err)
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send crawl results to %s: %w", site.NotificationEmail, err)
	}
	return nil
}
