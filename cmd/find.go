package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFindSitemapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find-sitemap <baseURL>",
		Short: "Probes a site for /sitemap.xml over https and http, with and without www",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sitemapURL, err := appInstance.FindSitemapURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sitemapURL)
			return err
		},
	}
}
