package session

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseEnvelopeKnownTypes(t *testing.T) {
	cases := []struct {
		name string
		data string
		want EnvelopeType
	}{
		{"status", `{"type":"status","message":"generating"}`, EnvelopeStatus},
		{"chunk", `{"type":"chunk","text":"Hel"}`, EnvelopeChunk},
		{"complete", `{"type":"complete","full_response":"Hello","total_tokens":5}`, EnvelopeComplete},
		{"error", `{"type":"error","message":"boom"}`, EnvelopeError},
		{"response", `{"type":"response","success":true,"full_response":"ok"}`, EnvelopeResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tc.data))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if env.Type != tc.want {
				t.Errorf("type = %s, want %s", env.Type, tc.want)
			}
		})
	}
}

func TestParseEnvelopeUnknownType(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"type":"telemetry"}`))
	if err == nil {
		t.Fatal("unknown type must be rejected")
	}
	if !strings.Contains(err.Error(), "telemetry") {
		t.Errorf("error should name the offending type: %v", err)
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	if _, err := ParseEnvelope([]byte(`{`)); err == nil {
		t.Fatal("malformed JSON must be rejected")
	}
}

func TestParseEnvelopeCompleteFields(t *testing.T) {
	data := `{
		"type": "complete",
		"full_response": "Hello",
		"model_used": "gemini-1.5-flash",
		"files_used": 1,
		"prompt_tokens": 120,
		"completion_tokens": 30,
		"total_tokens": 150,
		"retrieved_files": [{"id": "a.md", "name": "Alpha", "score": 0.82}]
	}`
	env, err := ParseEnvelope([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.FullResponse != "Hello" || env.TotalTokens != 150 || env.FilesUsed != 1 {
		t.Errorf("fields lost: %+v", env)
	}
	if len(env.RetrievedFiles) != 1 || env.RetrievedFiles[0].Score != 0.82 {
		t.Errorf("retrieved files lost: %+v", env.RetrievedFiles)
	}
}

func TestChunkEnvelopeWireFormat(t *testing.T) {
	data, err := json.Marshal(Envelope{
		Type:      EnvelopeChunk,
		Text:      "Hel",
		Model:     "gemini-1.5-flash",
		FilesUsed: 1,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame["text"] != "Hel" {
		t.Errorf("text key = %v", frame["text"])
	}
	if frame["model_used"] != "gemini-1.5-flash" {
		t.Errorf("model_used key = %v", frame["model_used"])
	}
	if frame["files_used"].(float64) != 1 {
		t.Errorf("files_used key = %v", frame["files_used"])
	}
	for _, stale := range []string{"content", "model"} {
		if _, ok := frame[stale]; ok {
			t.Errorf("unexpected %q key on the wire", stale)
		}
	}
}
