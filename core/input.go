// Package core defines the JSON payloads of the HTTP and WebSocket API.
package core

// AddMemoryInput is the body of POST /add-memory.
type AddMemoryInput struct {
	Text string `json:"text"`

	// Emotion is optional, for example "happy" or "anxious".
	Emotion string `json:"emotion,omitempty"`

	// Timestamp is an optional ISO-8601 time the memory refers to. When
	// absent it is inferred from words like "yesterday", or set to now.
	Timestamp string `json:"timestamp,omitempty"`
}

// AskInput is the body of POST /ask.
type AskInput struct {
	Question string `json:"question"`

	// TopK is the number of memories to retrieve. Zero selects the default.
	TopK int `json:"top_k,omitempty"`
}

// Message types exchanged over /ws.
const (
	MessageAdd    = "add"
	MessageAsk    = "ask"
	MessageList   = "list"
	MessageResult = "result"
	MessageError  = "error"
)

// WSMessage is a client frame on /ws. Type selects which fields apply.
type WSMessage struct {
	Type string `json:"type"`

	// ID is echoed in the reply so clients can match responses.
	ID string `json:"id,omitempty"`

	AddMemoryInput
	AskInput
}
