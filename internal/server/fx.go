// Package server builds the application's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/api"
	"github.com/JakeFAU/sitemap-tracker/internal/chain"
	"github.com/JakeFAU/sitemap-tracker/internal/clock/system"
	"github.com/JakeFAU/sitemap-tracker/internal/config"
	"github.com/JakeFAU/sitemap-tracker/internal/dispatcher"
	"github.com/JakeFAU/sitemap-tracker/internal/export"
	collyfetcher "github.com/JakeFAU/sitemap-tracker/internal/fetcher/colly"
	"github.com/JakeFAU/sitemap-tracker/internal/hash/sha256"
	"github.com/JakeFAU/sitemap-tracker/internal/id/uuid"
	"github.com/JakeFAU/sitemap-tracker/internal/logging"
	"github.com/JakeFAU/sitemap-tracker/internal/metrics"
	"github.com/JakeFAU/sitemap-tracker/internal/notify"
	smtpsender "github.com/JakeFAU/sitemap-tracker/internal/notify/smtp"
	"github.com/JakeFAU/sitemap-tracker/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/sitemap-tracker/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/sitemap-tracker/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/sitemap-tracker/internal/queue/memory"
	"github.com/JakeFAU/sitemap-tracker/internal/scheduler"
	"github.com/JakeFAU/sitemap-tracker/internal/seed"
	"github.com/JakeFAU/sitemap-tracker/internal/sitemap"
	gcsstorage "github.com/JakeFAU/sitemap-tracker/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sitemap-tracker/internal/storage/local"
	memoryStorage "github.com/JakeFAU/sitemap-tracker/internal/storage/memory"
	pgstore "github.com/JakeFAU/sitemap-tracker/internal/storage/postgres"
	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
	"github.com/JakeFAU/sitemap-tracker/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	dispatch        *dispatcher.Dispatcher
	scheduler       *scheduler.Scheduler
	queue           *queueMemory.Queue
	manager         *chain.Manager
	resolver        *sitemap.Resolver
	runner          *worker.Worker
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	pg              *pgstore.Store
	closeOnce       sync.Once
}

type repositories struct {
	sites  tracker.SiteStore
	crawls tracker.CrawlStore
	chunks tracker.ChunkRepository
	ready  []api.ReadinessCheck
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("export_backend", cfg.Export.Backend),
	)

	repos, err := setupRepositories(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	blobStore, err := setupExportStorage(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	notifier, err := setupNotifier(app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	clock := system.New()
	ids := uuid.New()
	app.resolver = setupResolver(app)
	app.manager = chain.NewManager(
		repos.sites,
		repos.crawls,
		repos.chunks,
		app.resolver,
		clock,
		ids,
		chain.Config{ChunkSize: cfg.Chain.ChunkSize},
		logger.Named("chain"),
	)

	if _, err := seed.Sites(ctx, repos.sites, app.resolver, clock, cfg.SeedSites, logger.Named("seed")); err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("seed sites: %w", err)
	}

	app.queue = queueMemory.NewQueue(cfg.Scheduler.QueueDepth)
	app.dispatch, app.runner = setupDispatcher(app, publisher, notifier)

	if cfg.Scheduler.Enabled {
		app.scheduler, err = setupScheduler(app, repos.sites)
		if err != nil {
			app.closeInfrastructure()
			return nil, err
		}
	}

	exporter := export.New(app.manager, blobStore, sha256.New(), export.Config{
		Prefix:      cfg.Export.Prefix,
		ContentType: cfg.Export.ContentType,
	}, logger.Named("export"))

	app.apiServer = api.NewServer(api.Deps{
		Tracker:  app.manager,
		Finder:   app.resolver,
		Exporter: exporter,
		Queue:    app.dispatch,
		Clock:    clock,
		Ready:    repos.ready,
	}, *cfg, logger.Named("api"))

	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// CrawlSite runs one crawl in the foreground, including event publication
// and notification.
func (a *App) CrawlSite(ctx context.Context, siteID string) (tracker.Crawl, error) {
	return a.runner.Handle(ctx, tracker.CrawlRequest{
		SiteID:    siteID,
		Trigger:   "cli",
		Submitted: time.Now().Unix(),
	})
}

// FindSitemapURL probes baseURL for a sitemap.
func (a *App) FindSitemapURL(ctx context.Context, baseURL string) (string, error) {
	return a.resolver.FindSitemapURL(ctx, baseURL)
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Scheduler.Concurrency))
		a.dispatch.Run(ctx)
	}()

	if a.scheduler != nil {
		a.scheduler.Start(ctx)
		a.logger.Info("scheduler started", zap.String("timezone", a.cfg.Scheduler.Timezone))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers still running at shutdown deadline")
	}

	return a.Close()
}

// Close gracefully shuts down the application. Later calls are no-ops.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		a.closeInfrastructure()
		a.logger.Info("shutdown complete")
		_ = a.logger.Sync()
	})
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
}

func setupRepositories(ctx context.Context, app *App) (repositories, error) {
	if app.cfg.Storage.Backend != "postgres" {
		app.logger.Info("using in-memory document storage")
		return repositories{
			sites:  memoryStorage.NewSiteStore(),
			crawls: memoryStorage.NewCrawlStore(),
			chunks: memoryStorage.NewChunkStore(),
		}, nil
	}
	pgCfg := app.cfg.Storage.Postgres
	store, err := pgstore.Open(ctx, pgstore.Config{
		DSN:             pgCfg.DSN,
		MaxConns:        pgCfg.MaxConns,
		MinConns:        pgCfg.MinConns,
		MaxConnLifetime: pgCfg.MaxConnLifetime(),
	})
	if err != nil {
		return repositories{}, fmt.Errorf("postgres init failed: %w", err)
	}
	app.pg = store
	if app.cfg.Storage.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return repositories{}, fmt.Errorf("postgres schema failed: %w", err)
		}
		app.logger.Info("postgres schema ensured")
	}
	app.logger.Info("using postgres document storage",
		zap.Int32("max_conns", pgCfg.MaxConns),
		zap.Int32("min_conns", pgCfg.MinConns),
	)
	return repositories{
		sites:  store,
		crawls: store,
		chunks: store,
		ready:  []api.ReadinessCheck{store.Ping},
	}, nil
}

func setupExportStorage(ctx context.Context, app *App) (tracker.BlobStore, error) {
	var blobStore tracker.BlobStore
	var err error
	switch app.cfg.Export.Backend {
	case "gcs":
		app.logger.Info("using GCS export backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Export.GCSBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Debug("GCS export backend", zap.String("bucket", app.cfg.Export.GCSBucket))
	case "local":
		app.logger.Info("using local export backend")
		blobStore, err = localstorage.New(localstorage.Config{BaseDir: app.cfg.Export.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local export backend", zap.String("path", app.cfg.Export.LocalDir))
	default:
		app.logger.Info("using in-memory export backend")
		blobStore = memoryStorage.NewBlobStore()
	}
	return blobStore, nil
}

func setupPublisher(ctx context.Context, app *App) (tracker.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = gcppublisher.New(app.pubsubClient.Publisher(app.cfg.PubSub.TopicName))
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPublisher, nil
}

func setupNotifier(app *App) (tracker.Notifier, error) {
	mail := app.cfg.Mail
	if !mail.Enabled {
		app.logger.Info("crawl notifications disabled")
		return nil, nil
	}
	sender, err := smtpsender.New(smtpsender.Config{
		Host:     mail.Host,
		Port:     mail.Port,
		Username: mail.Username,
		Password: mail.Password,
		From:     mail.From,
	}, app.logger.Named("smtp"))
	if err != nil {
		return nil, fmt.Errorf("smtp sender init failed: %w", err)
	}
	app.logger.Info("crawl notifications enabled", zap.String("smtp_host", mail.Host), zap.Int("smtp_port", mail.Port))
	return notify.New(sender, app.logger.Named("notify")), nil
}

func setupResolver(app *App) *sitemap.Resolver {
	sm := app.cfg.Sitemap
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   sm.UserAgent,
		Timeout:     app.cfg.SitemapTimeout(),
		MaxBodySize: sm.MaxBodyBytes,
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   sm.RatePerSecond,
		DefaultBurst: sm.Burst,
	})
	app.logger.Info("sitemap resolver configured",
		zap.String("user_agent", sm.UserAgent),
		zap.Int("max_depth", sm.MaxDepth),
		zap.Int("max_sitemaps", sm.MaxSitemaps),
		zap.Float64("rate_per_second", sm.RatePerSecond),
	)
	return sitemap.NewResolver(fetcher, limiter, sitemap.Config{
		MaxDepth:    sm.MaxDepth,
		MaxSitemaps: sm.MaxSitemaps,
	}, app.logger.Named("sitemap"))
}

// setupDispatcher builds the worker pool. The returned worker is shared by
// foreground crawls and is not part of the pool.
func setupDispatcher(app *App, publisher tracker.Publisher, notifier tracker.Notifier) (*dispatcher.Dispatcher, *worker.Worker) {
	workerCfg := worker.Config{
		Topic:        app.cfg.PubSub.TopicName,
		MaxAttempts:  app.cfg.Scheduler.MaxAttempts,
		RetryBackoff: app.cfg.RetryBackoff(),
	}
	app.logger.Info("worker config",
		zap.String("topic", workerCfg.Topic),
		zap.Int("max_attempts", workerCfg.MaxAttempts),
		zap.Duration("retry_backoff", workerCfg.RetryBackoff),
	)

	workers := make([]dispatcher.Runner, 0, app.cfg.Scheduler.Concurrency)
	for i := 0; i < app.cfg.Scheduler.Concurrency; i++ {
		workers = append(workers, worker.New(
			app.queue,
			app.manager,
			publisher,
			notifier,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	foreground := worker.New(app.queue, app.manager, publisher, notifier, workerCfg, app.logger.Named("worker"))
	return dispatcher.New(app.queue, workers), foreground
}

func setupScheduler(app *App, sites tracker.SiteStore) (*scheduler.Scheduler, error) {
	loc, err := time.LoadLocation(app.cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	s, err := scheduler.New(scheduler.Config{
		Daily:    app.cfg.Scheduler.Daily,
		Weekly:   app.cfg.Scheduler.Weekly,
		Monthly:  app.cfg.Scheduler.Monthly,
		Location: loc,
	}, sites, app.queue, app.logger.Named("scheduler"))
	if err != nil {
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}
	return s, nil
}
