package llm

import "time"

// Document is an indexed source document with its embedding vector.
// The embedding is nil until the document has been indexed; once set it has
// exactly the configured dimension.
type Document struct {
	ID          string    `json:"id"` // external file identifier, unique
	DisplayName string    `json:"display_name"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ByteSize    int64     `json:"byte_size"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RetrievalResult references a document together with its cosine similarity
// to the query, in [0,1]. Produced per query, never persisted.
type RetrievalResult struct {
	DocumentID  string  `json:"document_id"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// GenerationResponse is the final result of a generation call.
type GenerationResponse struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	FilesUsed        int
}

// StreamEventType tags events on a streaming generation.
type StreamEventType string

const (
	EventStatus   StreamEventType = "status"
	EventChunk    StreamEventType = "chunk"
	EventComplete StreamEventType = "complete"
	EventError    StreamEventType = "error"
)

// StreamEvent is one event on a streaming reply. Chunk events carry Text;
// the terminal complete event carries Response and the retrieved-file list;
// a terminal error event carries Err instead.
type StreamEvent struct {
	Type      StreamEventType
	Text      string
	Model     string
	FilesUsed int
	Response  *GenerationResponse
	Retrieved []RetrievalResult
	Err       error
}

// QueryOutcome records how a single query ended, successful or not. It is
// the payload handed to the query log.
type QueryOutcome struct {
	Query            string
	Model            string
	FilesUsed        int
	SelectedFiles    []string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ResponseLength   int
	Success          bool
	ErrorMessage     string
	CreatedAt        time.Time
}
