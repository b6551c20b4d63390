// Package sitemap retrieves sitemap documents and flattens nested sitemap
// indexes into a single URL list.
package sitemap

import (
	"regexp"
	"strings"
)

var (
	locPattern    = regexp.MustCompile(`(?s)<loc>(.*?)</loc>`)
	nestedPattern = regexp.MustCompile(`(?s)<sitemap>.*?<loc>(.*?)</loc>.*?</sitemap>`)
)

// IsXML reports whether content looks like an XML document.
func IsXML(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "<")
}

// ExtractURLs returns every <loc> value in content and, separately, the <loc>
// of every <sitemap> block. A nested sitemap location appears in both lists.
func ExtractURLs(content string) (locs []string, nested []string) {
	locs = collect(locPattern, content)
	nested = collect(nestedPattern, content)
	return locs, nested
}

func collect(pattern *regexp.Regexp, content string) []string {
	matches := pattern.FindAllStringSubmatch(content, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}
