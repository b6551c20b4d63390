// Package dispatcher fans queued crawl requests out to a worker pool.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// Runner consumes work until its context ends.
type Runner interface {
	Run(ctx context.Context)
}

// Dispatcher starts a pool of workers over a shared queue.
type Dispatcher struct {
	queue   tracker.Queue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue tracker.Queue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk Runner) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, req tracker.CrawlRequest) error {
	if err := d.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
