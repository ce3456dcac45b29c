package session

import (
	"fmt"
	"testing"
)

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Add(Envelope{Type: EnvelopeChunk, Text: fmt.Sprintf("c%d", i)})
	}

	items := h.Items()
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	for i, want := range []string{"c3", "c4", "c5"} {
		if items[i].Text != want {
			t.Errorf("items[%d] = %q, want %q", i, items[i].Text, want)
		}
	}
}

func TestHistoryUnderCapacity(t *testing.T) {
	h := NewHistory(10)
	h.Add(Envelope{Type: EnvelopeStatus, Message: "a"})
	h.Add(Envelope{Type: EnvelopeStatus, Message: "b"})

	items := h.Items()
	if len(items) != 2 || items[0].Message != "a" || items[1].Message != "b" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestHistoryDisabled(t *testing.T) {
	h := NewHistory(0)
	h.Add(Envelope{Type: EnvelopeChunk})
	if h.Len() != 0 {
		t.Errorf("disabled history retained an envelope")
	}
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory(2)
	h.Add(Envelope{Type: EnvelopeChunk})
	h.Clear()
	if h.Len() != 0 || len(h.Items()) != 0 {
		t.Errorf("clear left entries behind")
	}
}
