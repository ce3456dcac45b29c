package store

import (
	"context"
	"log/slog"

	"ragchat/llm"
	"ragchat/pubsub"
)

// Recorder consumes query outcome events and appends them to the query
// log. It runs off the response path: a failed write is logged and
// otherwise dropped, it never delays or fails the query that produced it.
type Recorder struct {
	logs   *QueryLogStore
	events pubsub.Subscriber[llm.QueryOutcome]
	logger *slog.Logger
}

// NewRecorder wires a log store to an outcome event source.
func NewRecorder(logs *QueryLogStore, events pubsub.Subscriber[llm.QueryOutcome], logger *slog.Logger) *Recorder {
	return &Recorder{logs: logs, events: events, logger: logger}
}

// Run consumes outcome events until ctx is done or the broker shuts down.
func (r *Recorder) Run(ctx context.Context) {
	for event := range r.events.Subscribe(ctx) {
		if err := r.logs.Append(ctx, event.Payload); err != nil {
			r.logger.Error("query log write failed",
				"error", err,
				"model", event.Payload.Model,
				"event", string(event.Type))
		}
	}
}
