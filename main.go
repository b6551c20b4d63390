// Command sitemaptracker records how websites' sitemaps change over time.
package main

import (
	"github.com/JakeFAU/sitemap-tracker/cmd"
)

func main() {
	cmd.Execute()
}
