package memory

import (
	"context"
	"strings"
	"time"
)

// Record is one stored memory.
//
// Slot is the record's position in the embedding index. It is assigned when
// the record is created and never changes, even when the record is updated.
type Record struct {
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Slot      int       `json:"-"`

	// seq orders records by their most recent add or update.
	seq uint64
}

// ContextItem is a retrieved memory as handed to an Answerer.
// Emotion is empty when the memory carries none.
type ContextItem struct {
	Text    string `json:"text"`
	Emotion string `json:"emotion,omitempty"`
}

// Hit is one nearest-neighbour result from an Index.
type Hit struct {
	Slot  int
	Score float32
}

// Embedder converts text to unit-length vectors of a fixed dimension.
// Implementations: mock (testing), onnx (local model), gemini (API), cache (decorator).
//
// Embed fails with an error tagged ErrTagEmbedding when the text is blank or
// the underlying model is unavailable. Callers decide whether to retry.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts several texts at once; result i belongs to texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Index is an append-only vector index addressed by slot number.
// Implementations: chromem (local, in-memory).
type Index interface {
	// Insert stores vector at slot. The slot must equal Len().
	Insert(ctx context.Context, slot int, vector []float32) error

	// Search returns up to k slots ordered by descending inner product.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)

	// Len returns the number of slots ever inserted.
	Len() int

	// Close releases resources.
	Close() error
}

// Answerer produces a natural-language answer to a question given the
// retrieved memories. Failures to reach the model are tagged
// ErrTagLLMUnavailable.
type Answerer interface {
	Answer(ctx context.Context, question string, memories []ContextItem) (string, error)
}

// Normalize returns the key used to decide whether two texts are the same
// memory: surrounding whitespace trimmed, lowercased.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
