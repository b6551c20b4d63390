// Package scheduler turns crawl cadences into queued crawl requests.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// Default cron specs, evaluated in Config.Location.
const (
	DefaultDailySpec   = "0 0 * * *"
	DefaultWeeklySpec  = "0 0 * * 1"
	DefaultMonthlySpec = "0 0 1 * *"
)

// SiteLister finds the sites on a cadence.
type SiteLister interface {
	ListSitesBySchedule(ctx context.Context, schedule tracker.Schedule) ([]tracker.Site, error)
}

// Config maps cadences to cron specs. Empty specs fall back to the defaults.
type Config struct {
	Daily    string
	Weekly   string
	Monthly  string
	Location *time.Location
}

// Scheduler fires RunScheduledCrawls for every cadence on its cron spec.
type Scheduler struct {
	cron   *cron.Cron
	sites  SiteLister
	queue  tracker.Queue
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Scheduler and registers the three cadences.
func New(cfg Config, sites SiteLister, queue tracker.Queue, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cronLogger{logger.Sugar()})),
	)
	s := &Scheduler{
		cron:   c,
		sites:  sites,
		queue:  queue,
		logger: logger,
		ctx:    context.Background(),
	}

	specs := []struct {
		schedule tracker.Schedule
		spec     string
		fallback string
	}{
		{tracker.ScheduleDaily, cfg.Daily, DefaultDailySpec},
		{tracker.ScheduleWeekly, cfg.Weekly, DefaultWeeklySpec},
		{tracker.ScheduleMonthly, cfg.Monthly, DefaultMonthlySpec},
	}
	for _, entry := range specs {
		spec := entry.spec
		if spec == "" {
			spec = entry.fallback
		}
		schedule := entry.schedule
		if _, err := c.AddFunc(spec, func() { s.trigger(schedule) }); err != nil {
			return nil, fmt.Errorf("register %s crawl spec %q: %w", schedule, spec, err)
		}
		s.logger.Info("crawl cadence registered", zap.String("schedule", string(schedule)), zap.String("spec", spec))
	}
	return s, nil
}

// Start runs the cron loop in the background. Triggers use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	for _, entry := range s.cron.Entries() {
		s.logger.Debug("next scheduled run", zap.Time("next", entry.Next))
	}
}

// Stop halts the cron loop and waits for running triggers.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) trigger(schedule tracker.Schedule) {
	n, err := s.RunScheduledCrawls(s.ctx, schedule)
	if err != nil {
		s.logger.Error("scheduled crawl run failed", zap.String("schedule", string(schedule)), zap.Error(err))
		return
	}
	s.logger.Info("scheduled crawls enqueued", zap.String("schedule", string(schedule)), zap.Int("sites", n))
}

// RunScheduledCrawls enqueues one crawl request per site on schedule and
// returns how many were enqueued. Sites already waiting in the queue are
// skipped, and a failure for one site does not stop the others. A closed
// queue or a finished ctx ends the run.
func (s *Scheduler) RunScheduledCrawls(ctx context.Context, schedule tracker.Schedule) (int, error) {
	sites, err := s.sites.ListSitesBySchedule(ctx, schedule)
	if err != nil {
		return 0, fmt.Errorf("list %s sites: %w", schedule, err)
	}
	enqueued := 0
	for _, site := range sites {
		err := s.queue.Enqueue(ctx, tracker.CrawlRequest{
			SiteID:    site.ID,
			Trigger:   string(schedule),
			Submitted: time.Now().Unix(),
		})
		switch {
		case err == nil:
			enqueued++
		case errors.Is(err, tracker.ErrAlreadyQueued):
			s.logger.Debug("site already queued", zap.String("site_id", site.ID))
		case errors.Is(err, tracker.ErrQueueClosed), ctx.Err() != nil:
			return enqueued, fmt.Errorf("enqueue site %s: %w", site.ID, err)
		default:
			s.logger.Warn("enqueue scheduled crawl failed", zap.String("site_id", site.ID), zap.Error(err))
		}
	}
	return enqueued, nil
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
