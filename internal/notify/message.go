// Package notify emails site owners the outcome of scheduled crawls.
package notify

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

const (
	// InlineDiffLimit is the largest diff listed in the body; bigger diffs go to a CSV attachment.
	InlineDiffLimit = 5
	// AttachmentName is the file name of the diff attachment.
	AttachmentName = "crawl_diff.csv"

	timestampLayout = "2006-01-02 15:04:05"
)

// Message is a plain-text email with an optional attachment.
type Message struct {
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
}

// Attachment is a file carried by a Message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ValidAddress reports whether addr parses as a single RFC 5322 address.
func ValidAddress(addr string) bool {
	if strings.TrimSpace(addr) == "" {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address != ""
}

// BuildCrawlMessage renders the crawl result email for site. prev may be nil.
func BuildCrawlMessage(site tracker.Site, crawl tracker.Crawl, prev *tracker.Crawl) (Message, error) {
	var body strings.Builder
	fmt.Fprintf(&body, "Site: %s\n", site.Name)
	fmt.Fprintf(&body, "Crawl Schedule: %s\n", site.CrawlSchedule)
	fmt.Fprintf(&body, "Crawl Date: %s\n", formatTimestamp(crawl.FinishedAt))
	if prev != nil {
		fmt.Fprintf(&body, "Previous Crawl Date: %s\n", formatTimestamp(prev.FinishedAt))
	}
	body.WriteString("Crawl differences: \n")

	msg := Message{
		To:      site.NotificationEmail,
		Subject: "Crawl Results for " + site.Name,
	}
	diff := crawl.DiffToPrevCrawl
	switch {
	case len(diff) == 0:
		body.WriteString("No changes")
	case len(diff) <= InlineDiffLimit:
		for _, item := range diff {
			body.WriteString(item.String())
			body.WriteString("\n")
		}
	default:
		body.WriteString("See attached CSV file for more details.")
		data, err := DiffCSV(diff)
		if err != nil {
			return Message{}, err
		}
		msg.Attachment = &Attachment{
			Filename:    AttachmentName,
			ContentType: "text/csv",
			Data:        data,
		}
	}
	msg.Body = body.String()
	return msg, nil
}

// DiffCSV renders diff items with an Action,URL,Checked header.
func DiffCSV(items []tracker.CrawlDiffItem) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Action", "URL", "Checked"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, item := range items {
		if err := w.Write([]string{string(item.Action), item.URL, strconv.FormatBool(item.Checked)}); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
