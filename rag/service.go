package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ragchat/llm"
	"ragchat/pubsub"
)

// QueryRequest is one user query with its optional overrides. A non-empty
// SelectedFiles list switches retrieval to manual mode.
type QueryRequest struct {
	Message             string
	Model               string
	SystemPrompt        string
	SelectedFiles       []string
	EnableAutoRetrieval *bool
	TopK                *int
	SimilarityThreshold *float64
}

// QueryResult is the reply to an atomic (non-streaming) query.
type QueryResult struct {
	Response  llm.GenerationResponse
	Model     string
	Retrieved []llm.RetrievalResult
}

// Service runs the full pipeline for one query: retrieval decision, prompt
// assembly, generation, and outcome publishing.
type Service struct {
	policy    *Policy
	assembler Assembler
	generator *Generator
	outcomes  pubsub.Publisher[llm.QueryOutcome]
	logger    *slog.Logger
}

// NewService wires the pipeline components together.
func NewService(policy *Policy, generator *Generator, outcomes pubsub.Publisher[llm.QueryOutcome], logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		policy:    policy,
		generator: generator,
		outcomes:  outcomes,
		logger:    logger,
	}
}

func (s *Service) retrievalOptions(req QueryRequest) RetrievalOptions {
	return RetrievalOptions{
		EnableAuto:          req.EnableAutoRetrieval,
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
	}
}

// Search exposes the retrieval step on its own, for the search endpoint.
// Unlike the query path it propagates retrieval failures.
func (s *Service) Search(ctx context.Context, query string, opts RetrievalOptions) ([]llm.RetrievalResult, error) {
	return s.policy.Retrieve(ctx, query, opts)
}

// Query answers one query atomically and logs its outcome.
func (s *Service) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	if req.Message == "" {
		return QueryResult{}, fmt.Errorf("message is required")
	}

	docs, retrieved, err := s.policy.Resolve(ctx, req.Message, req.SelectedFiles, s.retrievalOptions(req))
	if err != nil {
		s.publishOutcome(req, "", llm.GenerationResponse{}, 0, err)
		return QueryResult{}, err
	}

	messages := s.assembler.Assemble(req.SystemPrompt, req.Message, docs)
	resp, err := s.generator.Generate(ctx, req.Model, messages)
	if err != nil {
		s.publishOutcome(req, req.Model, llm.GenerationResponse{}, len(docs), err)
		return QueryResult{}, err
	}

	resp.FilesUsed = len(docs)
	modelID := req.Model
	if modelID == "" {
		modelID = s.generator.models.DefaultID()
	}
	s.publishOutcome(req, modelID, resp, len(docs), nil)

	return QueryResult{Response: resp, Model: modelID, Retrieved: retrieved}, nil
}

// QueryStream answers one query as a finite event stream: a status event
// once retrieval is done, chunk events while the model produces text, then
// one complete or error event. The returned channel closes after the
// terminal event. Validation failures (empty message, unknown model) are
// returned synchronously.
func (s *Service) QueryStream(ctx context.Context, req QueryRequest) (<-chan llm.StreamEvent, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("message is required")
	}

	docs, retrieved, err := s.policy.Resolve(ctx, req.Message, req.SelectedFiles, s.retrievalOptions(req))
	if err != nil {
		s.publishOutcome(req, req.Model, llm.GenerationResponse{}, 0, err)
		return nil, err
	}

	messages := s.assembler.Assemble(req.SystemPrompt, req.Message, docs)
	inner, err := s.generator.GenerateStream(ctx, req.Model, messages)
	if err != nil {
		s.publishOutcome(req, req.Model, llm.GenerationResponse{}, len(docs), err)
		return nil, err
	}

	filesUsed := len(docs)
	out := make(chan llm.StreamEvent)
	go func() {
		defer close(out)

		status := llm.StreamEvent{Type: llm.EventStatus, Text: "生成回應中...", FilesUsed: filesUsed}
		select {
		case out <- status:
		case <-ctx.Done():
			return
		}

		for ev := range inner {
			ev.FilesUsed = filesUsed
			switch ev.Type {
			case llm.EventComplete:
				ev.Retrieved = retrieved
				if ev.Response != nil {
					ev.Response.FilesUsed = filesUsed
				}
				s.publishOutcome(req, ev.Model, responseOrZero(ev.Response), filesUsed, nil)
			case llm.EventError:
				s.publishOutcome(req, ev.Model, llm.GenerationResponse{}, filesUsed, ev.Err)
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// publishOutcome hands the query result to the log broker. Delivery is
// non-blocking; the response path never waits on logging.
func (s *Service) publishOutcome(req QueryRequest, modelID string, resp llm.GenerationResponse, filesUsed int, err error) {
	if s.outcomes == nil {
		return
	}

	outcome := llm.QueryOutcome{
		Query:            req.Message,
		Model:            modelID,
		FilesUsed:        filesUsed,
		SelectedFiles:    req.SelectedFiles,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
		ResponseLength:   len(resp.Text),
		Success:          err == nil,
		CreatedAt:        time.Now(),
	}
	eventType := pubsub.QueryCompleted
	if err != nil {
		outcome.ErrorMessage = err.Error()
		eventType = pubsub.QueryFailed
	}
	s.outcomes.Publish(eventType, outcome)
}

func responseOrZero(resp *llm.GenerationResponse) llm.GenerationResponse {
	if resp == nil {
		return llm.GenerationResponse{}
	}
	return *resp
}
