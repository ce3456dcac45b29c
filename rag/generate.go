package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"ragchat/llm"
)

// ModelSource resolves model ids to chat models. Satisfied by
// providers.Registry.
type ModelSource interface {
	Lookup(id string) (model.BaseChatModel, string, error)
	DefaultID() string
}

const generationTemperature = 0.7

// Generator runs atomic and streaming generation against the model
// registry.
type Generator struct {
	models    ModelSource
	maxTokens int
	logger    *slog.Logger
}

// NewGenerator wraps a model source.
func NewGenerator(models ModelSource, maxTokens int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{models: models, maxTokens: maxTokens, logger: logger}
}

// Generate produces one complete response. The model id is validated before
// any model call; an unknown id fails with UnsupportedModelError from the
// registry.
func (g *Generator) Generate(ctx context.Context, modelID string, messages []*schema.Message) (llm.GenerationResponse, error) {
	m, resolvedID, err := g.models.Lookup(modelID)
	if err != nil {
		return llm.GenerationResponse{}, err
	}

	msg, err := m.Generate(ctx, messages, g.callOptions()...)
	if err != nil {
		return llm.GenerationResponse{}, fmt.Errorf("model %s: %w", resolvedID, err)
	}

	resp := llm.GenerationResponse{Text: msg.Content}
	applyUsage(&resp, msg)
	return resp, nil
}

// GenerateStream produces a finite event stream: zero or more chunk events
// followed by exactly one complete or error event, then the channel closes.
// Model validation happens before the stream starts, so an unknown model id
// is returned synchronously. Cancelling ctx stops chunk production and
// closes the model stream.
func (g *Generator) GenerateStream(ctx context.Context, modelID string, messages []*schema.Message) (<-chan llm.StreamEvent, error) {
	m, resolvedID, err := g.models.Lookup(modelID)
	if err != nil {
		return nil, err
	}

	sr, err := m.Stream(ctx, messages, g.callOptions()...)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", resolvedID, err)
	}

	events := make(chan llm.StreamEvent)
	go func() {
		defer close(events)
		defer sr.Close()

		resp := llm.GenerationResponse{}
		for {
			chunk, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				g.emit(ctx, events, llm.StreamEvent{
					Type:     llm.EventComplete,
					Model:    resolvedID,
					Response: &resp,
				})
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				g.logger.Error("generation stream failed", "model", resolvedID, "error", err)
				g.emit(ctx, events, llm.StreamEvent{
					Type:  llm.EventError,
					Model: resolvedID,
					Err:   fmt.Errorf("model %s: %w", resolvedID, err),
				})
				return
			}

			resp.Text += chunk.Content
			applyUsage(&resp, chunk)

			if chunk.Content == "" {
				continue
			}
			if !g.emit(ctx, events, llm.StreamEvent{
				Type:  llm.EventChunk,
				Text:  chunk.Content,
				Model: resolvedID,
			}) {
				return
			}
		}
	}()

	return events, nil
}

func (g *Generator) emit(ctx context.Context, events chan<- llm.StreamEvent, ev llm.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *Generator) callOptions() []model.Option {
	temp := float32(generationTemperature)
	return []model.Option{
		model.WithMaxTokens(g.maxTokens),
		model.WithTemperature(temp),
	}
}

func applyUsage(resp *llm.GenerationResponse, msg *schema.Message) {
	if msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return
	}
	usage := msg.ResponseMeta.Usage
	resp.PromptTokens = usage.PromptTokens
	resp.CompletionTokens = usage.CompletionTokens
	resp.TotalTokens = usage.TotalTokens
}
