package rag

import (
	"context"
	"fmt"
	"log/slog"

	"ragchat/llm"
)

// Embedder produces a query-mode embedding for retrieval.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher ranks indexed documents against a query vector.
type Searcher interface {
	Search(ctx context.Context, queryVector []float32, topK int, threshold float64) ([]llm.RetrievalResult, error)
}

// DocumentResolver loads documents for an explicit selection or a search
// result.
type DocumentResolver interface {
	GetByFileNames(ctx context.Context, fileNames []string) ([]llm.Document, error)
}

// RetrievalOptions carries per-query overrides of the retrieval defaults.
// Nil fields keep the configured value.
type RetrievalOptions struct {
	EnableAuto          *bool
	TopK                *int
	SimilarityThreshold *float64
}

// Policy decides per query between manual and automatic retrieval.
//
// A non-empty selected-file list means manual mode: the listed documents are
// loaded as-is and the embedder and searcher are never touched. An empty
// list means automatic mode: the query is embedded and similar documents are
// retrieved, unless automatic retrieval is disabled for the query.
type Policy struct {
	embedder  Embedder
	searcher  Searcher
	resolver  DocumentResolver
	topK      int
	threshold float64
	logger    *slog.Logger
}

// NewPolicy builds a retrieval policy with the configured defaults.
func NewPolicy(embedder Embedder, searcher Searcher, resolver DocumentResolver, topK int, threshold float64, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		embedder:  embedder,
		searcher:  searcher,
		resolver:  resolver,
		topK:      topK,
		threshold: threshold,
		logger:    logger,
	}
}

// Resolve returns the context documents for a query.
//
// Manual-mode failures are fatal: the caller asked for specific documents
// and silently answering without them would be misleading. Automatic-mode
// failures degrade to zero documents so the model can still give a general
// answer.
func (p *Policy) Resolve(ctx context.Context, query string, selected []string, opts RetrievalOptions) ([]llm.Document, []llm.RetrievalResult, error) {
	if len(selected) > 0 {
		docs, err := p.resolver.GetByFileNames(ctx, selected)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve selected documents: %w", err)
		}
		return docs, nil, nil
	}

	if opts.EnableAuto != nil && !*opts.EnableAuto {
		return nil, nil, nil
	}

	results, err := p.Retrieve(ctx, query, opts)
	if err != nil {
		p.logger.Warn("automatic retrieval failed, answering without context", "error", err)
		return nil, nil, nil
	}
	if len(results) == 0 {
		return nil, nil, nil
	}

	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.DocumentID
	}
	docs, err := p.resolver.GetByFileNames(ctx, names)
	if err != nil {
		p.logger.Warn("loading retrieved documents failed, answering without context", "error", err)
		return nil, nil, nil
	}
	return docs, results, nil
}

// Retrieve embeds the query and searches the vector index, propagating any
// failure to the caller. The search endpoint uses it directly.
func (p *Policy) Retrieve(ctx context.Context, query string, opts RetrievalOptions) ([]llm.RetrievalResult, error) {
	vec, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	topK := p.topK
	if opts.TopK != nil {
		topK = *opts.TopK
	}
	threshold := p.threshold
	if opts.SimilarityThreshold != nil {
		threshold = *opts.SimilarityThreshold
	}

	results, err := p.searcher.Search(ctx, vec, topK, threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}
