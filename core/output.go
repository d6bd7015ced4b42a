package core

import (
	"time"

	"github.com/becomeliminal/nim-recall/memory"
)

// OKResponse acknowledges a write.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ContextItem is a retrieved memory on the wire. Emotion is null when absent.
type ContextItem struct {
	Text    string  `json:"text"`
	Emotion *string `json:"emotion"`
}

// AskResponse is returned by POST /ask. Answer is null when no memory is
// stored.
type AskResponse struct {
	Answer  *string       `json:"answer"`
	Context []ContextItem `json:"context"`
}

// Memory is a stored memory on the wire.
type Memory struct {
	Text      string    `json:"text"`
	Emotion   *string   `json:"emotion"`
	Timestamp time.Time `json:"timestamp"`
}

// MemoriesResponse is returned by GET /memories.
type MemoriesResponse struct {
	Memories []Memory `json:"memories"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Memories int    `json:"memories"`
	LLM      string `json:"llm,omitempty"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

// WSReply is a server frame on /ws.
type WSReply struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	OK       bool          `json:"ok,omitempty"`
	Answer   *string       `json:"answer,omitempty"`
	Context  []ContextItem `json:"context,omitempty"`
	Memories []Memory      `json:"memories,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// NewAskResponse converts a memory.Answer to its wire form.
func NewAskResponse(a *memory.Answer) AskResponse {
	resp := AskResponse{Context: NewContext(a.Context)}
	if a.Found() {
		text := a.Text
		resp.Answer = &text
	}
	return resp
}

// NewContext converts retrieved memories to their wire form.
func NewContext(items []memory.ContextItem) []ContextItem {
	out := make([]ContextItem, len(items))
	for i, it := range items {
		out[i] = ContextItem{Text: it.Text, Emotion: optional(it.Emotion)}
	}
	return out
}

// NewMemories converts stored records to their wire form.
func NewMemories(records []memory.Record) []Memory {
	out := make([]Memory, len(records))
	for i, r := range records {
		out[i] = Memory{
			Text:      r.Text,
			Emotion:   optional(r.Emotion),
			Timestamp: r.Timestamp,
		}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
