package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"ragchat/llm"
	"ragchat/llm/providers"
	"ragchat/llm/vector"
	"ragchat/rag"
	"ragchat/session"
	"ragchat/store"
)

type echoModel struct{}

func (echoModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	msg := schema.AssistantMessage("canned answer", nil)
	msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}
	return msg, nil
}

func (echoModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](1)
	sw.Send(schema.AssistantMessage("canned answer", nil), nil)
	sw.Close()
	return sr, nil
}

type unitEmbedder struct{}

func (unitEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	db, err := store.Open("sqlite", ":memory:", logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	docs := store.NewDocumentStore(db)
	logs := store.NewQueryLogStore(db)

	seed := []llm.Document{
		{ID: "guide.md", DisplayName: "Guide", Content: strings.Repeat("相關內容。", 60), Embedding: vec2(0.82)},
		{ID: "other.md", DisplayName: "Other", Content: "無關內容。", Embedding: vec2(0.31)},
	}
	vectors := vector.NewMemoryStore(vector.StoreConfig{Dim: 2})
	for _, d := range seed {
		if err := docs.CreateOrUpdate(context.Background(), d); err != nil {
			t.Fatalf("seed doc: %v", err)
		}
	}
	if err := vectors.Upsert(context.Background(), seed); err != nil {
		t.Fatalf("seed vectors: %v", err)
	}

	registry, err := providers.NewRegistry(map[string]model.BaseChatModel{
		"gemini-1.5-flash": echoModel{},
	}, "gemini-1.5-flash")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	policy := rag.NewPolicy(unitEmbedder{}, vectors, docs, 5, 0.7, logger)
	generator := rag.NewGenerator(registry, 8192, logger)
	svc := rag.NewService(policy, generator, nil, logger)

	return New(":0", Dependencies{
		RAG:       svc,
		Models:    registry,
		Documents: docs,
		QueryLogs: logs,
		Vectors:   vectors,
		Logger:    logger,
	})
}

func vec2(x float64) []float32 {
	return []float32{float32(x), float32(math.Sqrt(1 - x*x))}
}

func doRequest(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode %s %s response: %v (%s)", method, path, err, rec.Body.String())
	}
	return rec, decoded
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec, body := doRequest(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["document_count"].(float64) != 2 {
		t.Errorf("document_count = %v", body["document_count"])
	}
}

func TestModelsEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec, body := doRequest(t, s, http.MethodGet, "/api/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["default"] != "gemini-1.5-flash" {
		t.Errorf("default = %v", body["default"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec, body := doRequest(t, s, http.MethodPost, "/api/search", `{"query":"相關問題"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", rec.Code, body)
	}

	results := body["results"].([]any)
	// only the 0.82 document clears the 0.7 threshold
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	first := results[0].(map[string]any)
	if first["document_id"] != "guide.md" {
		t.Errorf("document_id = %v", first["document_id"])
	}
	previewText := first["content_preview"].(string)
	if !strings.HasSuffix(previewText, "...") {
		t.Errorf("long content should be truncated with ellipsis: %q", previewText)
	}
	if got := len([]rune(strings.TrimSuffix(previewText, "..."))); got != previewLength {
		t.Errorf("preview length = %d runes, want %d", got, previewLength)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	s := newTestServer(t)
	rec, _ := doRequest(t, s, http.MethodPost, "/api/search", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChatFallbackEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec, body := doRequest(t, s, http.MethodPost, "/api/chat", `{"message":"相關問題"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", rec.Code, body)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["response"] != "canned answer" {
		t.Errorf("response = %v", body["response"])
	}
	if body["model_used"] != "gemini-1.5-flash" {
		t.Errorf("model_used = %v", body["model_used"])
	}
	if body["files_used"].(float64) != 1 {
		t.Errorf("files_used = %v", body["files_used"])
	}
}

func TestChatRequiresMessage(t *testing.T) {
	s := newTestServer(t)
	rec, _ := doRequest(t, s, http.MethodPost, "/api/chat", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec, body := doRequest(t, s, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["document_count"].(float64) != 2 {
		t.Errorf("document_count = %v", body["document_count"])
	}
	if body["indexed_documents"].(float64) != 2 {
		t.Errorf("indexed_documents = %v", body["indexed_documents"])
	}
}

func TestChunkEventEnvelope(t *testing.T) {
	env := eventEnvelope(llm.StreamEvent{
		Type:      llm.EventChunk,
		Text:      "Hel",
		Model:     "gemini-1.5-flash",
		FilesUsed: 2,
	})

	if env.Type != session.EnvelopeChunk {
		t.Fatalf("type = %s", env.Type)
	}
	if env.Text != "Hel" || env.Model != "gemini-1.5-flash" || env.FilesUsed != 2 {
		t.Errorf("chunk metadata lost: %+v", env)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"text":"Hel"`, `"model_used":"gemini-1.5-flash"`, `"files_used":2`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("frame missing %s: %s", key, data)
		}
	}
}
