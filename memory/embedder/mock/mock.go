package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-recall/memory"
)

// DefaultDimensions matches multi-qa-mpnet-base-dot-v1.
const DefaultDimensions = 768

// MockEmbedder is a deterministic offline embedder for tests and demos.
//
// Each lowercase word is hashed to seed a pseudo-random unit direction and
// the text vector is the normalized sum of its word vectors. Texts sharing
// words therefore score higher than unrelated texts, which is enough for
// demos without a model file.
type MockEmbedder struct {
	dimensions int
}

// Option configures a MockEmbedder.
type Option func(*MockEmbedder)

// WithDimensions sets the vector size.
func WithDimensions(n int) Option {
	return func(m *MockEmbedder) {
		if n > 0 {
			m.dimensions = n
		}
	}
}

// New creates a new mock embedder.
func New(opts ...Option) *MockEmbedder {
	m := &MockEmbedder{
		dimensions: DefaultDimensions,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Embed creates a deterministic embedding from text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, goerr.New("cannot embed blank text", goerr.T(memory.ErrTagEmbedding))
	}

	embedding := make([]float32, m.dimensions)
	for _, w := range words {
		addWordVector(embedding, w)
	}

	return normalize(embedding), nil
}

// EmbedBatch embeds each text in order.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed batch item", goerr.V("index", i), goerr.T(memory.ErrTagEmbedding))
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// addWordVector adds the hash-seeded pseudo-random vector of word to dst.
func addWordVector(dst []float32, word string) {
	h := fnv.New64a()
	h.Write([]byte(word))
	seed := h.Sum64()

	for i := range dst {
		// Simple LCG (Linear Congruential Generator)
		seed = seed*6364136223846793005 + 1442695040888963407
		// Convert to [-1, 1] range
		dst[i] += float32(int64(seed)) / float32(math.MaxInt64)
	}
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

var _ memory.Embedder = (*MockEmbedder)(nil)
