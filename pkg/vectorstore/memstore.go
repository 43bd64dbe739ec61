package vectorstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It backs single-node deployments and
// tests; the record-level mutex gives the same atomicity guarantees as the
// remote backend.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]Document
	vectors map[string][]float32
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]Document),
		vectors: make(map[string][]float32),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return ErrVectorCountMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		s.docs[doc.ID] = doc
		s.vectors[doc.ID] = vectors[i]
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	candidates := make([]Candidate, 0, k)
	for id, doc := range s.docs {
		if !filter.matches(doc) || doc.Expired(now) {
			continue
		}
		candidates = append(candidates, Candidate{
			Document: doc,
			Distance: CosineDistance(vector, s.vectors[id]),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Document.ID < candidates[j].Document.ID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
		delete(s.vectors, id)
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var out []Document
	for _, doc := range s.docs {
		if !filter.matches(doc) || doc.Expired(now) {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	count := 0
	for _, doc := range s.docs {
		if filter.matches(doc) && !doc.Expired(now) {
			count++
		}
	}
	return count, nil
}
