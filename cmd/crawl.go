package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd crawls one site in the foreground and prints the new crawl.
func newCrawlCmd() *cobra.Command {
	var siteID string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls one site now and appends the result to its chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if siteID == "" {
				return errors.New("--site is required")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			crawl, err := appInstance.CrawlSite(cmd.Context(), siteID)
			if err != nil {
				return fmt.Errorf("crawl site %s: %w", siteID, err)
			}
			added, removed := crawl.DiffCounts()
			appInstance.Logger().Info("crawl complete",
				zap.String("site_id", siteID),
				zap.String("crawl_id", crawl.ID),
				zap.Int("added", added),
				zap.Int("removed", removed),
			)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(crawl)
		},
	}
	cmd.Flags().StringVar(&siteID, "site", "", "id of the site to crawl")
	return cmd
}
