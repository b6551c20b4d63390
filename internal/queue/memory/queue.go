// Package memory provides the in-process crawl request queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

var (
	// ErrClosed is returned once the queue has been closed and drained.
	ErrClosed = tracker.ErrQueueClosed
	// ErrAlreadyQueued is returned when the site already has a pending request.
	ErrAlreadyQueued = tracker.ErrAlreadyQueued
)

// Queue is a bounded in-memory queue holding at most one pending request per
// site. Close must only be called once producers have stopped.
type Queue struct {
	ch      chan tracker.CrawlRequest
	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch:      make(chan tracker.CrawlRequest, capacity),
		pending: make(map[string]struct{}),
	}
}

// Enqueue pushes a request or returns when the context ends.
func (q *Queue) Enqueue(ctx context.Context, req tracker.CrawlRequest) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if _, dup := q.pending[req.SiteID]; dup {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, req.SiteID)
	}
	q.pending[req.SiteID] = struct{}{}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		q.release(req.SiteID)
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- req:
		return nil
	}
}

// Dequeue pops the next request, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (tracker.CrawlRequest, error) {
	select {
	case <-ctx.Done():
		return tracker.CrawlRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req, ok := <-q.ch:
		if !ok {
			return tracker.CrawlRequest{}, ErrClosed
		}
		q.release(req.SiteID)
		return req, nil
	}
}

// Len reports the number of pending requests.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}

func (q *Queue) release(siteID string) {
	q.mu.Lock()
	delete(q.pending, siteID)
	q.mu.Unlock()
}
