package session

import (
	"encoding/json"
	"fmt"
)

// EnvelopeType tags a server frame. The set is closed; frames with any
// other type are rejected by ParseEnvelope.
type EnvelopeType string

const (
	EnvelopeStatus   EnvelopeType = "status"
	EnvelopeChunk    EnvelopeType = "chunk"
	EnvelopeComplete EnvelopeType = "complete"
	EnvelopeError    EnvelopeType = "error"
	EnvelopeResponse EnvelopeType = "response"
)

// RetrievedFile is one retrieved document reference inside a complete
// envelope.
type RetrievedFile struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Envelope is one server-to-client frame. Which fields are set depends on
// the type: status and error carry Message, chunk carries Text, complete
// and response carry the full result fields.
type Envelope struct {
	Type             EnvelopeType    `json:"type"`
	Message          string          `json:"message,omitempty"`
	Text             string          `json:"text,omitempty"`
	Model            string          `json:"model_used,omitempty"`
	FilesUsed        int             `json:"files_used,omitempty"`
	FullResponse     string          `json:"full_response,omitempty"`
	PromptTokens     int             `json:"prompt_tokens,omitempty"`
	CompletionTokens int             `json:"completion_tokens,omitempty"`
	TotalTokens      int             `json:"total_tokens,omitempty"`
	RetrievedFiles   []RetrievedFile `json:"retrieved_files,omitempty"`
	Success          bool            `json:"success,omitempty"`
}

// QueryEnvelope is the client-to-server query frame.
type QueryEnvelope struct {
	Message             string   `json:"message"`
	Model               string   `json:"model,omitempty"`
	SelectedFiles       []string `json:"selected_files,omitempty"`
	SystemPrompt        string   `json:"system_prompt,omitempty"`
	EnableAutoRetrieval *bool    `json:"enable_auto_retrieval,omitempty"`
	TopK                *int     `json:"top_k,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
}

// ParseEnvelope decodes a server frame and validates its type.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}

	switch env.Type {
	case EnvelopeStatus, EnvelopeChunk, EnvelopeComplete, EnvelopeError, EnvelopeResponse:
		return env, nil
	default:
		return Envelope{}, fmt.Errorf("unknown envelope type %q", env.Type)
	}
}
