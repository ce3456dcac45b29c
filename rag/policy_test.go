package rag

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"ragchat/llm"
)

type fakeEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

type fakeSearcher struct {
	calls     int
	topK      int
	threshold float64
	results   []llm.RetrievalResult
	err       error
}

func (f *fakeSearcher) Search(ctx context.Context, queryVector []float32, topK int, threshold float64) ([]llm.RetrievalResult, error) {
	f.calls++
	f.topK = topK
	f.threshold = threshold
	return f.results, f.err
}

type fakeResolver struct {
	docs map[string]llm.Document
	err  error
}

func (f *fakeResolver) GetByFileNames(ctx context.Context, fileNames []string) ([]llm.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]llm.Document, 0, len(fileNames))
	for _, name := range fileNames {
		if doc, ok := f.docs[name]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestManualModeNeverTouchesRetrieval(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	searcher := &fakeSearcher{}
	resolver := &fakeResolver{docs: map[string]llm.Document{
		"a.md": {ID: "a.md", Content: "alpha"},
		"b.md": {ID: "b.md", Content: "beta"},
	}}
	policy := NewPolicy(embedder, searcher, resolver, 5, 0.7, discardLogger())

	docs, retrieved, err := policy.Resolve(context.Background(), "question", []string{"b.md", "a.md"}, RetrievalOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if embedder.calls != 0 || searcher.calls != 0 {
		t.Errorf("manual mode used embedder (%d) or searcher (%d)", embedder.calls, searcher.calls)
	}
	if len(docs) != 2 || docs[0].ID != "b.md" {
		t.Errorf("unexpected docs: %+v", docs)
	}
	if retrieved != nil {
		t.Errorf("manual mode should not report retrieval scores")
	}
}

func TestEmptySelectionMeansAutomatic(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	searcher := &fakeSearcher{results: []llm.RetrievalResult{
		{DocumentID: "a.md", DisplayName: "Alpha", Score: 0.9},
	}}
	resolver := &fakeResolver{docs: map[string]llm.Document{
		"a.md": {ID: "a.md", Content: "alpha"},
	}}
	policy := NewPolicy(embedder, searcher, resolver, 5, 0.7, discardLogger())

	docs, retrieved, err := policy.Resolve(context.Background(), "question", nil, RetrievalOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if embedder.calls != 1 || searcher.calls != 1 {
		t.Errorf("automatic mode should embed and search once, got %d/%d", embedder.calls, searcher.calls)
	}
	if searcher.topK != 5 || searcher.threshold != 0.7 {
		t.Errorf("defaults not applied: topK=%d threshold=%v", searcher.topK, searcher.threshold)
	}
	if len(docs) != 1 || len(retrieved) != 1 {
		t.Errorf("docs=%d retrieved=%d, want 1/1", len(docs), len(retrieved))
	}
}

func TestPerQueryOverrides(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	searcher := &fakeSearcher{}
	policy := NewPolicy(embedder, searcher, &fakeResolver{}, 5, 0.7, discardLogger())

	topK := 3
	threshold := 0.5
	_, _, err := policy.Resolve(context.Background(), "q", nil, RetrievalOptions{TopK: &topK, SimilarityThreshold: &threshold})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if searcher.topK != 3 || searcher.threshold != 0.5 {
		t.Errorf("overrides not applied: topK=%d threshold=%v", searcher.topK, searcher.threshold)
	}
}

func TestAutoRetrievalDisabled(t *testing.T) {
	embedder := &fakeEmbedder{}
	searcher := &fakeSearcher{}
	policy := NewPolicy(embedder, searcher, &fakeResolver{}, 5, 0.7, discardLogger())

	off := false
	docs, _, err := policy.Resolve(context.Background(), "q", nil, RetrievalOptions{EnableAuto: &off})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if docs != nil {
		t.Errorf("disabled retrieval should return zero documents")
	}
	if embedder.calls != 0 {
		t.Errorf("disabled retrieval still embedded the query")
	}
}

func TestAutomaticFailureDegradesToZeroDocs(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("embedding backend down")}
	policy := NewPolicy(embedder, &fakeSearcher{}, &fakeResolver{}, 5, 0.7, discardLogger())

	docs, retrieved, err := policy.Resolve(context.Background(), "q", nil, RetrievalOptions{})
	if err != nil {
		t.Fatalf("automatic failure must not be fatal, got %v", err)
	}
	if docs != nil || retrieved != nil {
		t.Errorf("expected zero documents after degraded retrieval")
	}
}

func TestManualFailureIsFatal(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("db down")}
	policy := NewPolicy(&fakeEmbedder{}, &fakeSearcher{}, resolver, 5, 0.7, discardLogger())

	_, _, err := policy.Resolve(context.Background(), "q", []string{"a.md"}, RetrievalOptions{})
	if err == nil {
		t.Fatal("manual mode failure must surface to the caller")
	}
}

func TestRetrievePropagatesSearchError(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("index gone")}
	policy := NewPolicy(&fakeEmbedder{vec: []float32{1}}, searcher, &fakeResolver{}, 5, 0.7, discardLogger())

	_, err := policy.Retrieve(context.Background(), "q", RetrievalOptions{})
	if err == nil {
		t.Fatal("Retrieve must propagate search errors")
	}
}
