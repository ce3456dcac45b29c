package store

import (
	"context"
	"testing"

	"ragchat/llm"
)

func openTestDB(t *testing.T) *DocumentStore {
	t.Helper()
	db, err := Open("sqlite", ":memory:", nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return NewDocumentStore(db)
}

func TestDocumentCreateOrUpdate(t *testing.T) {
	docs := openTestDB(t)
	ctx := context.Background()

	err := docs.CreateOrUpdate(ctx, llm.Document{
		ID:          "guide.md",
		DisplayName: "Guide",
		Content:     "first version",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = docs.CreateOrUpdate(ctx, llm.Document{
		ID:          "guide.md",
		DisplayName: "Guide v2",
		Content:     "second version",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	count, err := docs.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 document after upsert, got %d", count)
	}

	got, err := docs.GetByFileName(ctx, "guide.md")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "second version" || got.DisplayName != "Guide v2" {
		t.Errorf("update not applied: %+v", got)
	}
	if got.ByteSize != int64(len("second version")) {
		t.Errorf("byte size = %d, want %d", got.ByteSize, len("second version"))
	}
}

func TestDocumentGetByFileNamesPreservesOrder(t *testing.T) {
	docs := openTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"a.md", "b.md", "c.md"} {
		if err := docs.CreateOrUpdate(ctx, llm.Document{ID: id, DisplayName: id, Content: id}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	got, err := docs.GetByFileNames(ctx, []string{"c.md", "missing.md", "a.md"})
	if err != nil {
		t.Fatalf("get by names: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 resolved documents, got %d", len(got))
	}
	if got[0].ID != "c.md" || got[1].ID != "a.md" {
		t.Errorf("selection order not preserved: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestDocumentGetMissing(t *testing.T) {
	docs := openTestDB(t)

	_, err := docs.GetByFileName(context.Background(), "nope.md")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueryLogAppendAndStats(t *testing.T) {
	db, err := Open("sqlite", ":memory:", nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	logs := NewQueryLogStore(db)
	ctx := context.Background()

	outcomes := []llm.QueryOutcome{
		{Query: "q1", Model: "gemini-1.5-flash", FilesUsed: 2, TotalTokens: 100, Success: true},
		{Query: "q2", Model: "gemini-1.5-flash", FilesUsed: 0, TotalTokens: 40, Success: true},
		{Query: "q3", Model: "gemini-1.5-pro", FilesUsed: 1, Success: false, ErrorMessage: "model overloaded"},
	}
	for _, o := range outcomes {
		if err := logs.Append(ctx, o); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	stats, err := logs.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQueries != 3 {
		t.Errorf("total = %d, want 3", stats.TotalQueries)
	}
	if stats.SuccessfulQueries != 2 {
		t.Errorf("successful = %d, want 2", stats.SuccessfulQueries)
	}
	if stats.ModelUsage["gemini-1.5-flash"] != 2 {
		t.Errorf("flash usage = %d, want 2", stats.ModelUsage["gemini-1.5-flash"])
	}
	if stats.TotalTokens != 140 {
		t.Errorf("token sum = %d, want 140", stats.TotalTokens)
	}

	recent, err := logs.ListRecent(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("page size = %d, want 2", len(recent))
	}
}

func TestQueryLogStatsEmpty(t *testing.T) {
	db, err := Open("sqlite", ":memory:", nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	logs := NewQueryLogStore(db)

	stats, err := logs.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalQueries != 0 || stats.SuccessRate != 0 {
		t.Errorf("empty log should yield zero stats: %+v", stats)
	}
}
