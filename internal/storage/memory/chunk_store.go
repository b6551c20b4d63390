package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// ChunkStore keeps URL chunks in memory.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]tracker.URLChunk
}

// NewChunkStore constructs a ChunkStore.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{chunks: make(map[string]tracker.URLChunk)}
}

// SaveChunks stores all chunks or none of them.
func (s *ChunkStore) SaveChunks(_ context.Context, chunks []tracker.URLChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("%w: chunk id is required", tracker.ErrValidation)
		}
		if _, exists := s.chunks[c.ID]; exists {
			return fmt.Errorf("chunk %s already exists: %w", c.ID, tracker.ErrConflict)
		}
	}
	for _, c := range chunks {
		c.URLs = slices.Clone(c.URLs)
		s.chunks[c.ID] = c
	}
	return nil
}

// GetChunk fetches a chunk by ID.
func (s *ChunkStore) GetChunk(_ context.Context, chunkID string) (tracker.URLChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[chunkID]
	if !ok {
		return tracker.URLChunk{}, fmt.Errorf("chunk %s: %w", chunkID, tracker.ErrNotFound)
	}
	c.URLs = slices.Clone(c.URLs)
	return c, nil
}

// DeleteChunksByCrawl removes every chunk owned by crawlID.
func (s *ChunkStore) DeleteChunksByCrawl(_ context.Context, crawlID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.CrawlID == crawlID {
			delete(s.chunks, id)
		}
	}
	return nil
}

// DeleteChunk removes a single chunk.
func (s *ChunkStore) DeleteChunk(chunkID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, chunkID)
}

// CountForCrawl reports how many chunks crawlID owns.
func (s *ChunkStore) CountForCrawl(crawlID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.chunks {
		if c.CrawlID == crawlID {
			n++
		}
	}
	return n
}
