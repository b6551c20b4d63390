package chain

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

// DefaultChunkSize is the maximum number of URLs per chunk.
const DefaultChunkSize = 1000

// ChunkStore pages a snapshot's URL list into fixed-size chunks.
type ChunkStore struct {
	repo   tracker.ChunkRepository
	ids    tracker.IDGenerator
	size   int
	logger *zap.Logger
}

// NewChunkStore builds a ChunkStore. A non-positive size uses DefaultChunkSize.
func NewChunkStore(repo tracker.ChunkRepository, ids tracker.IDGenerator, size int, logger *zap.Logger) *ChunkStore {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChunkStore{
		repo:   repo,
		ids:    ids,
		size:   size,
		logger: logger,
	}
}

// Save splits urls into chunks owned by crawlID and returns the chunk ids in
// page order. An empty list produces no chunks.
func (s *ChunkStore) Save(ctx context.Context, urls []string, crawlID string) ([]string, error) {
	if crawlID == "" {
		return nil, errors.New("crawl id is required")
	}
	chunks := make([]tracker.URLChunk, 0, (len(urls)+s.size-1)/s.size)
	for start := 0; start < len(urls); start += s.size {
		end := min(start+s.size, len(urls))
		id, err := s.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate chunk id: %w", err)
		}
		page := make([]string, end-start)
		copy(page, urls[start:end])
		chunks = append(chunks, tracker.URLChunk{ID: id, CrawlID: crawlID, URLs: page})
	}
	if len(chunks) == 0 {
		return []string{}, nil
	}
	if err := s.repo.SaveChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("save chunks: %w", err)
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids, nil
}

// Load concatenates the URLs of the given chunks in id order. Chunks that no
// longer exist are skipped with a warning.
func (s *ChunkStore) Load(ctx context.Context, chunkIDs []string) ([]string, error) {
	urls := make([]string, 0, len(chunkIDs)*s.size)
	for _, id := range chunkIDs {
		chunk, err := s.repo.GetChunk(ctx, id)
		if err != nil {
			if errors.Is(err, tracker.ErrNotFound) {
				s.logger.Warn("url chunk missing, skipping", zap.String("chunk_id", id))
				continue
			}
			return nil, fmt.Errorf("load chunk %s: %w", id, err)
		}
		urls = append(urls, chunk.URLs...)
	}
	return urls, nil
}

// DeleteAllForCrawl removes every chunk owned by crawlID.
func (s *ChunkStore) DeleteAllForCrawl(ctx context.Context, crawlID string) error {
	if err := s.repo.DeleteChunksByCrawl(ctx, crawlID); err != nil {
		return fmt.Errorf("delete chunks for crawl %s: %w", crawlID, err)
	}
	return nil
}
