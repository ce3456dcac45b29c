package rag

import (
	"errors"
	"testing"

	"ragchat/llm"
)

func TestAggregatorAccumulatesChunks(t *testing.T) {
	agg := NewAggregator()
	if err := agg.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}

	agg.Apply(llm.StreamEvent{Type: llm.EventChunk, Text: "Hel", Model: "gemini-1.5-flash"})
	agg.Apply(llm.StreamEvent{Type: llm.EventChunk, Text: "lo"})

	msg := agg.Message()
	if msg.Text != "Hello" {
		t.Errorf("text = %q, want Hello", msg.Text)
	}
	if msg.Model != "gemini-1.5-flash" {
		t.Errorf("model metadata lost: %q", msg.Model)
	}
	if agg.State() != StateStreaming {
		t.Errorf("state = %s, want streaming", agg.State())
	}
}

func TestAggregatorSingleOpenStream(t *testing.T) {
	agg := NewAggregator()
	if err := agg.Begin(); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	if err := agg.Begin(); !errors.Is(err, ErrStreamOpen) {
		t.Fatalf("second begin = %v, want ErrStreamOpen", err)
	}

	agg.Apply(llm.StreamEvent{Type: llm.EventComplete, Response: &llm.GenerationResponse{}})
	if err := agg.Begin(); err != nil {
		t.Errorf("begin after completion should succeed, got %v", err)
	}
}

func TestAggregatorComplete(t *testing.T) {
	agg := NewAggregator()
	_ = agg.Begin()

	agg.Apply(llm.StreamEvent{Type: llm.EventChunk, Text: "answer"})
	agg.Apply(llm.StreamEvent{
		Type:      llm.EventComplete,
		Model:     "gemini-1.5-flash",
		FilesUsed: 2,
		Response:  &llm.GenerationResponse{Text: "answer", TotalTokens: 42},
		Retrieved: []llm.RetrievalResult{{DocumentID: "a.md", Score: 0.9}},
	})

	if agg.State() != StateCompleted {
		t.Fatalf("state = %s", agg.State())
	}
	msg := agg.Message()
	if msg.Response == nil || msg.Response.TotalTokens != 42 {
		t.Errorf("token counts not attached: %+v", msg.Response)
	}
	if len(msg.Retrieved) != 1 || msg.FilesUsed != 2 {
		t.Errorf("retrieval metadata not attached: %+v", msg)
	}
}

func TestAggregatorErrorDiscardsText(t *testing.T) {
	agg := NewAggregator()
	_ = agg.Begin()

	agg.Apply(llm.StreamEvent{Type: llm.EventChunk, Text: "partial"})
	agg.Apply(llm.StreamEvent{Type: llm.EventError, Err: errors.New("model overloaded")})

	if agg.State() != StateFailed {
		t.Fatalf("state = %s", agg.State())
	}
	msg := agg.Message()
	if msg.Text != "" {
		t.Errorf("failed stream must discard accumulated text, got %q", msg.Text)
	}
	if msg.Err == nil {
		t.Errorf("error not surfaced")
	}
}

func TestAggregatorIgnoresEventsWhenIdle(t *testing.T) {
	agg := NewAggregator()
	agg.Apply(llm.StreamEvent{Type: llm.EventChunk, Text: "stray"})
	if agg.Message().Text != "" {
		t.Errorf("idle aggregator accepted a chunk")
	}
}
