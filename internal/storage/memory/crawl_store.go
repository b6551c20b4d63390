package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// CrawlStore keeps crawls in memory with optimistic versioning.
type CrawlStore struct {
	mu     sync.RWMutex
	crawls map[string]tracker.Crawl
}

// NewCrawlStore constructs a CrawlStore.
func NewCrawlStore() *CrawlStore {
	return &CrawlStore{crawls: make(map[string]tracker.Crawl)}
}

// CreateCrawl stores a new crawl at version 1.
func (s *CrawlStore) CreateCrawl(_ context.Context, crawl tracker.Crawl) (tracker.Crawl, error) {
	if crawl.ID == "" {
		return tracker.Crawl{}, fmt.Errorf("%w: crawl id is required", tracker.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.crawls[crawl.ID]; exists {
		return tracker.Crawl{}, fmt.Errorf("crawl %s already exists: %w", crawl.ID, tracker.ErrConflict)
	}
	crawl = crawl.Clone()
	crawl.Version = 1
	s.crawls[crawl.ID] = crawl
	return crawl.Clone(), nil
}

// GetCrawl fetches a crawl by ID.
func (s *CrawlStore) GetCrawl(_ context.Context, crawlID string) (tracker.Crawl, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	crawl, ok := s.crawls[crawlID]
	if !ok {
		return tracker.Crawl{}, fmt.Errorf("crawl %s: %w", crawlID, tracker.ErrNotFound)
	}
	return crawl.Clone(), nil
}

// UpdateCrawl replaces a crawl if its version matches the stored one.
func (s *CrawlStore) UpdateCrawl(_ context.Context, crawl tracker.Crawl) (tracker.Crawl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.crawls[crawl.ID]
	if !ok {
		return tracker.Crawl{}, fmt.Errorf("crawl %s: %w", crawl.ID, tracker.ErrNotFound)
	}
	if stored.Version != crawl.Version {
		return tracker.Crawl{}, fmt.Errorf(
			"crawl %s at version %d, got %d: %w", crawl.ID, stored.Version, crawl.Version, tracker.ErrConflict,
		)
	}
	crawl = crawl.Clone()
	crawl.Version++
	s.crawls[crawl.ID] = crawl
	return crawl.Clone(), nil
}

// DeleteCrawl removes a crawl.
func (s *CrawlStore) DeleteCrawl(_ context.Context, crawlID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.crawls[crawlID]; !ok {
		return fmt.Errorf("crawl %s: %w", crawlID, tracker.ErrNotFound)
	}
	delete(s.crawls, crawlID)
	return nil
}

// Len reports how many crawls are stored.
func (s *CrawlStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.crawls)
}
