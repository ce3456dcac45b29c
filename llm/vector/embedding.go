package vector

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
)

// EmbeddingService wraps the embedding models for vector generation. The
// document and query modes may use differently configured models, matching
// retrieval-document vs retrieval-query task types.
type EmbeddingService struct {
	doc   embedding.Embedder
	query embedding.Embedder
	dim   int
}

// NewEmbeddingService creates a new embedding service. If query is nil the
// document embedder serves both modes.
func NewEmbeddingService(doc, query embedding.Embedder, dim int) *EmbeddingService {
	if query == nil {
		query = doc
	}
	if dim <= 0 {
		dim = 768
	}
	return &EmbeddingService{doc: doc, query: query, dim: dim}
}

// EmbedDocument generates an embedding vector for document content.
func (s *EmbeddingService) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, s.doc, text)
}

// EmbedQuery generates an embedding vector for a search query.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, s.query, text)
}

// EmbedDocumentBatch generates embedding vectors for multiple documents.
func (s *EmbeddingService) EmbedDocumentBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	vectors, err := s.doc.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	result := make([][]float32, len(vectors))
	for i, vec := range vectors {
		converted, err := s.convert(vec)
		if err != nil {
			return nil, err
		}
		result[i] = converted
	}
	return result, nil
}

// Dimension returns the embedding dimension.
func (s *EmbeddingService) Dimension() int {
	return s.dim
}

func (s *EmbeddingService) embed(ctx context.Context, embedder embedding.Embedder, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	vectors, err := embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return s.convert(vectors[0])
}

// convert turns the model's float64 vector into float32 and enforces the
// configured dimension.
func (s *EmbeddingService) convert(vec []float64) ([]float32, error) {
	if s.dim > 0 && len(vec) != s.dim {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), s.dim)
	}
	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = float32(v)
	}
	return result, nil
}
