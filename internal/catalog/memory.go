package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/storagepod/storagepod/internal/fsops"
)

// MemoryStore is an in-memory Store for tests and catalog-less deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]fsops.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]fsops.Record)}
}

func (s *MemoryStore) Get(_ context.Context, path string) (fsops.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[path]
	if !ok {
		return fsops.Record{}, fmt.Errorf("catalog entry %q: %w", path, fsops.ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) Put(_ context.Context, rec fsops.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Path] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, path)
	return nil
}

func (s *MemoryStore) Search(_ context.Context, q Query) ([]fsops.Record, error) {
	q.Normalize()

	s.mu.RLock()
	records := make([]fsops.Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	return q.Apply(records), nil
}

func (s *MemoryStore) Close() error { return nil }
