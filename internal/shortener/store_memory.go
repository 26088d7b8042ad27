package shortener

import (
	"context"
	"sync"

	"github.com/sundayezeilo/digestlink/internal/errx"
)

// MemoryStore keeps records in process memory.
// Records do not survive a restart; use it for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]string
}

// NewMemoryStore returns a MemoryStore pre-filled with seed.
func NewMemoryStore(seed ...Record) *MemoryStore {
	records := make(map[string]string, len(seed))
	for _, rec := range seed {
		records[rec.Slug] = rec.URL
	}
	return &MemoryStore{records: records}
}

func (s *MemoryStore) Get(ctx context.Context, slug string) (Record, error) {
	const op = "shortener.MemoryStore.Get"

	if err := ctx.Err(); err != nil {
		return Record{}, errx.E(op, errx.Unavailable, err)
	}

	s.mu.RLock()
	url, ok := s.records[slug]
	s.mu.RUnlock()

	if !ok {
		return Record{}, errx.E(op, errx.NotFound, ErrNotFound)
	}
	return Record{Slug: slug, URL: url}, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	const op = "shortener.MemoryStore.Put"

	if err := ctx.Err(); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.Slug]; ok {
		return errx.E(op, errx.Conflict, ErrSlugTaken)
	}
	s.records[rec.Slug] = rec.URL
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ Store = (*MemoryStore)(nil)
