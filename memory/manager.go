package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-recall/logging"
)

// Answer is the result of a recall question.
//
// Text is empty and Context is empty when no memories are stored; in that
// case the model is not called.
type Answer struct {
	Text    string        `json:"answer"`
	Context []ContextItem `json:"context"`
}

// Found reports whether any memory backed this answer.
func (a *Answer) Found() bool {
	return len(a.Context) > 0
}

// Manager orchestrates the ask flow: retrieve relevant memories from the
// Store, then ask the Answerer to phrase a reply from them.
type Manager struct {
	store    *Store
	answerer Answerer
}

// NewManager creates a new Manager.
func NewManager(store *Store, answerer Answerer) (*Manager, error) {
	if store == nil {
		return nil, goerr.New("store is required")
	}
	if answerer == nil {
		return nil, goerr.New("answerer is required")
	}
	return &Manager{
		store:    store,
		answerer: answerer,
	}, nil
}

// Store returns the underlying memory store.
func (m *Manager) Store() *Store {
	return m.store
}

// Ask retrieves up to topK memories for question and asks the model.
// topK <= 0 selects the store's default.
func (m *Manager) Ask(ctx context.Context, question string, topK int) (*Answer, error) {
	if topK <= 0 {
		topK = m.store.DefaultTopK()
	}

	memories, err := m.store.Search(ctx, question, topK)
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Info("retrieved memories for question",
		"question", truncateLog(question, 50),
		"count", len(memories),
	)
	if len(memories) == 0 {
		return &Answer{Context: []ContextItem{}}, nil
	}

	text, err := m.answerer.Answer(ctx, question, memories)
	if err != nil {
		return nil, err
	}

	return &Answer{Text: text, Context: memories}, nil
}
