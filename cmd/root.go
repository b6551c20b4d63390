// Package cmd defines the sitemaptracker CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/config"
	"github.com/JakeFAU/sitemap-tracker/internal/server"
	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

type appKeyType string

const appKey appKeyType = "app"

// App is the slice of the application the commands use. Tests inject a fake.
type App interface {
	Run(ctx context.Context) error
	Close() error
	Logger() *zap.Logger
	CrawlSite(ctx context.Context, siteID string) (tracker.Crawl, error)
	FindSitemapURL(ctx context.Context, baseURL string) (string, error)
}

// newApp is the application factory, swapped out in tests.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return server.Build(ctx, &cfg)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "sitemaptracker",
		Short: "Tracks how a site's sitemap changes between crawls.",
		Long: `sitemaptracker crawls sitemaps on demand or on a daily, weekly or monthly
schedule and keeps each site's history as a chain of diffs against the
first full snapshot.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				_ = appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newFindSitemapCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
