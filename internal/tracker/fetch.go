package tracker

import (
	"net/http"
	"time"
)

// FetchRequest describes one sitemap document download.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse carries the raw document and transport metadata.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
