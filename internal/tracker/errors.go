package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a site, crawl or chunk does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the caller does not own the site.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation marks malformed input at the API boundary.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when an optimistic version check fails.
	ErrConflict = errors.New("version conflict")
	// ErrInvalidSitemap is matched by every InvalidSitemapError.
	ErrInvalidSitemap = errors.New("invalid sitemap")
	// ErrSitemapLimit is returned when a sitemap tree exceeds the configured depth or size.
	ErrSitemapLimit = errors.New("sitemap limit exceeded")
	// ErrQueueClosed is returned by a drained queue after shutdown.
	ErrQueueClosed = errors.New("queue closed")
	// ErrAlreadyQueued is returned when a site already has a pending crawl request.
	ErrAlreadyQueued = errors.New("site already queued")
)

// FetchError reports a failure to retrieve a sitemap document.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch sitemap %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// InvalidSitemapError reports a document that is not XML.
type InvalidSitemapError struct {
	URL string
}

func (e *InvalidSitemapError) Error() string {
	return fmt.Sprintf("invalid sitemap %s: document is not XML", e.URL)
}

// Is lets errors.Is match ErrInvalidSitemap.
func (e *InvalidSitemapError) Is(target error) bool {
	return target == ErrInvalidSitemap
}
