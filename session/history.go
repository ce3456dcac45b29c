package session

import "sync"

// History keeps the most recent envelopes in arrival order, evicting the
// oldest once the capacity is reached.
type History struct {
	mu      sync.Mutex
	entries []Envelope
	start   int
	size    int
}

// NewHistory returns a history holding at most capacity envelopes.
// capacity <= 0 means history is disabled and Add is a no-op.
func NewHistory(capacity int) *History {
	if capacity < 0 {
		capacity = 0
	}
	return &History{entries: make([]Envelope, capacity)}
}

// Add records one envelope, evicting the oldest when full.
func (h *History) Add(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return
	}

	idx := (h.start + h.size) % len(h.entries)
	h.entries[idx] = env
	if h.size < len(h.entries) {
		h.size++
	} else {
		h.start = (h.start + 1) % len(h.entries)
	}
}

// Items returns the retained envelopes, oldest first.
func (h *History) Items() []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Envelope, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.entries[(h.start+i)%len(h.entries)]
	}
	return out
}

// Len returns the number of retained envelopes.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Clear drops all retained envelopes.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start, h.size = 0, 0
}
