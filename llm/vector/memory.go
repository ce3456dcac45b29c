package vector

import (
	"context"
	"sync"

	"ragchat/llm"
)

// MemoryStore is an in-memory VectorStore using brute-force cosine
// similarity. It backs tests and single-node deployments without an
// external index.
type MemoryStore struct {
	mu   sync.RWMutex
	cfg  StoreConfig
	docs map[string]llm.Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(cfg StoreConfig) *MemoryStore {
	return &MemoryStore{
		cfg:  cfg,
		docs: make(map[string]llm.Document),
	}
}

// Upsert inserts or replaces documents by id.
func (s *MemoryStore) Upsert(ctx context.Context, docs []llm.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		if doc.ID == "" {
			continue
		}
		s.docs[doc.ID] = doc
	}
	return nil
}

// Search ranks all indexed documents against queryVector.
func (s *MemoryStore) Search(ctx context.Context, queryVector []float32, topK int, threshold float64) ([]llm.RetrievalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]llm.RetrievalResult, 0, len(s.docs))
	for _, doc := range s.docs {
		if doc.Embedding == nil {
			continue // not yet indexed
		}
		score := CosineSimilarity(queryVector, doc.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, llm.RetrievalResult{
			DocumentID:  doc.ID,
			DisplayName: doc.DisplayName,
			Score:       score,
		})
	}
	return sortResults(results, topK), nil
}

// Delete removes a document by id.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// Count returns the number of stored documents.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.docs)), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
