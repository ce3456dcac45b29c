package rag

import (
	"errors"
	"sync"

	"ragchat/llm"
)

// ErrStreamOpen reports an attempt to start a stream while another one is
// still open on the same aggregator.
var ErrStreamOpen = errors.New("a stream is already open")

// StreamState is the lifecycle state of the aggregator.
type StreamState string

const (
	StateIdle      StreamState = "idle"
	StateStreaming StreamState = "streaming"
	StateCompleted StreamState = "completed"
	StateFailed    StreamState = "failed"
)

// StreamingMessage is the reply being accumulated from chunk events.
type StreamingMessage struct {
	Text      string
	Model     string
	FilesUsed int
	Response  *llm.GenerationResponse
	Retrieved []llm.RetrievalResult
	Err       error
}

// Aggregator folds a stream of events into one reply message. It admits a
// single open stream at a time; Begin fails with ErrStreamOpen while a
// stream is in flight. A terminal event (complete or error) closes the
// stream and a new Begin starts over.
type Aggregator struct {
	mu      sync.Mutex
	state   StreamState
	message StreamingMessage
}

// NewAggregator returns an idle aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{state: StateIdle}
}

// Begin opens a new stream, discarding any previous reply.
func (a *Aggregator) Begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateStreaming {
		return ErrStreamOpen
	}
	a.state = StateStreaming
	a.message = StreamingMessage{}
	return nil
}

// Apply folds one event into the reply. Chunk events append text and
// refresh the model metadata; complete attaches the final response and the
// retrieved-file list; error discards the accumulated text and records the
// failure.
func (a *Aggregator) Apply(ev llm.StreamEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateStreaming {
		return
	}

	switch ev.Type {
	case llm.EventChunk:
		a.message.Text += ev.Text
		if ev.Model != "" {
			a.message.Model = ev.Model
		}
		if ev.FilesUsed > 0 {
			a.message.FilesUsed = ev.FilesUsed
		}
	case llm.EventComplete:
		if ev.Model != "" {
			a.message.Model = ev.Model
		}
		a.message.FilesUsed = ev.FilesUsed
		a.message.Response = ev.Response
		a.message.Retrieved = ev.Retrieved
		a.state = StateCompleted
	case llm.EventError:
		a.message = StreamingMessage{Model: ev.Model, Err: ev.Err}
		a.state = StateFailed
	}
}

// State returns the current lifecycle state.
func (a *Aggregator) State() StreamState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Message returns a snapshot of the accumulated reply.
func (a *Aggregator) Message() StreamingMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.message
}
