package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"ragchat/llm"
	"ragchat/rag"
	"ragchat/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// chat answers one query in a single JSON response. It is the fallback for
// clients without WebSocket support.
func (h *handlers) chat(c echo.Context) error {
	var q session.QueryEnvelope
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid json: " + err.Error()})
	}
	if q.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "message is required"})
	}

	result, err := h.deps.RAG.Query(c.Request().Context(), queryRequest(q))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":           true,
		"response":          result.Response.Text,
		"model_used":        result.Model,
		"files_used":        result.Response.FilesUsed,
		"prompt_tokens":     result.Response.PromptTokens,
		"completion_tokens": result.Response.CompletionTokens,
		"total_tokens":      result.Response.TotalTokens,
		"retrieved_files":   retrievedFiles(result.Retrieved),
	})
}

// wsChat runs the streaming chat protocol over one WebSocket connection.
// Queries run off the read loop so ping traffic stays answered during slow
// generation; the aggregator admits one in-flight query at a time.
func (h *handlers) wsChat(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	ws := &wsClient{conn: conn}
	agg := rag.NewAggregator()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// client gone, cancel any running generation
			return nil
		}

		if string(data) == "ping" {
			ws.writeRaw([]byte("pong"))
			continue
		}

		var q session.QueryEnvelope
		if err := json.Unmarshal(data, &q); err != nil {
			ws.writeEnvelope(session.Envelope{Type: session.EnvelopeError, Message: "invalid query frame"})
			continue
		}
		if q.Message == "" {
			ws.writeEnvelope(session.Envelope{Type: session.EnvelopeError, Message: "message is required"})
			continue
		}
		if err := agg.Begin(); err != nil {
			ws.writeEnvelope(session.Envelope{Type: session.EnvelopeError, Message: "a query is already running"})
			continue
		}

		go h.runQuery(ctx, ws, agg, q)
	}
}

func (h *handlers) runQuery(ctx context.Context, ws *wsClient, agg *rag.Aggregator, q session.QueryEnvelope) {
	events, err := h.deps.RAG.QueryStream(ctx, queryRequest(q))
	if err != nil {
		agg.Apply(llm.StreamEvent{Type: llm.EventError, Err: err})
		ws.writeEnvelope(session.Envelope{Type: session.EnvelopeError, Message: err.Error()})
		return
	}

	for ev := range events {
		agg.Apply(ev)
		ws.writeEnvelope(eventEnvelope(ev))
	}
}

// wsClient serializes writes to one WebSocket connection.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsClient) writeRaw(data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsClient) writeEnvelope(env session.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	w.writeRaw(data)
}

func queryRequest(q session.QueryEnvelope) rag.QueryRequest {
	return rag.QueryRequest{
		Message:             q.Message,
		Model:               q.Model,
		SystemPrompt:        q.SystemPrompt,
		SelectedFiles:       q.SelectedFiles,
		EnableAutoRetrieval: q.EnableAutoRetrieval,
		TopK:                q.TopK,
		SimilarityThreshold: q.SimilarityThreshold,
	}
}

func eventEnvelope(ev llm.StreamEvent) session.Envelope {
	switch ev.Type {
	case llm.EventStatus:
		return session.Envelope{
			Type:      session.EnvelopeStatus,
			Message:   ev.Text,
			FilesUsed: ev.FilesUsed,
		}
	case llm.EventChunk:
		return session.Envelope{
			Type:      session.EnvelopeChunk,
			Text:      ev.Text,
			Model:     ev.Model,
			FilesUsed: ev.FilesUsed,
		}
	case llm.EventError:
		msg := "generation failed"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return session.Envelope{
			Type:    session.EnvelopeError,
			Message: msg,
			Model:   ev.Model,
		}
	default:
		env := session.Envelope{
			Type:           session.EnvelopeComplete,
			Model:          ev.Model,
			FilesUsed:      ev.FilesUsed,
			RetrievedFiles: retrievedFiles(ev.Retrieved),
			Success:        true,
		}
		if ev.Response != nil {
			env.FullResponse = ev.Response.Text
			env.PromptTokens = ev.Response.PromptTokens
			env.CompletionTokens = ev.Response.CompletionTokens
			env.TotalTokens = ev.Response.TotalTokens
		}
		return env
	}
}

func retrievedFiles(results []llm.RetrievalResult) []session.RetrievedFile {
	if len(results) == 0 {
		return nil
	}
	out := make([]session.RetrievedFile, len(results))
	for i, r := range results {
		out[i] = session.RetrievedFile{ID: r.DocumentID, Name: r.DisplayName, Score: r.Score}
	}
	return out
}
