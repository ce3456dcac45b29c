package vector

import (
	"context"
	"errors"
	"math"
	"sort"

	"ragchat/llm"
)

// ErrStoreUnavailable reports that the backing index could not be queried.
// It is distinct from an empty result set, which is a valid "no match"
// outcome.
var ErrStoreUnavailable = errors.New("vector store unavailable")

// VectorStore persists document vectors and ranks them by cosine
// similarity against a query vector.
type VectorStore interface {
	// Upsert inserts or replaces documents. Each document must carry an
	// embedding of the configured dimension.
	Upsert(ctx context.Context, docs []llm.Document) error

	// Search returns results with similarity >= threshold, ordered by
	// similarity descending with ties broken by document id ascending.
	// topK <= 0 means unlimited.
	Search(ctx context.Context, queryVector []float32, topK int, threshold float64) ([]llm.RetrievalResult, error)

	// Delete removes a document by its ID.
	Delete(ctx context.Context, id string) error

	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int64, error)

	// Close releases any connections or resources.
	Close() error
}

// StoreConfig holds configuration shared by store implementations.
type StoreConfig struct {
	// Embedding dimension (must match the embedding model)
	Dim int

	// Index name for backends with a named vector index
	IndexName string

	// Key prefix for stored documents (redis backend)
	KeyPrefix string
}

// DefaultStoreConfig returns default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Dim:       768,
		IndexName: "ragchat-docs",
		KeyPrefix: "doc:",
	}
}

// CosineSimilarity returns the cosine similarity of a and b clamped to
// [0,1]; 1 means identical direction. Zero vectors or mismatched lengths
// score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// sortResults orders results by similarity descending, ties broken by
// document id ascending for determinism, then applies the topK cut.
func sortResults(results []llm.RetrievalResult, topK int) []llm.RetrievalResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocumentID < results[j].DocumentID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
