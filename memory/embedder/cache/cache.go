// Package cache memoizes embeddings in a ristretto cache.
//
// Embedding a phrase is the slowest step of both add and ask, and users tend
// to repeat themselves. The decorator keys by exact text, so any embedder
// that is deterministic can be wrapped.
package cache

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-recall/memory"
)

// DefaultMaxBytes bounds the vector bytes held by the cache.
const DefaultMaxBytes = 64 << 20

// Embedder wraps another Embedder with a bounded in-memory cache.
type Embedder struct {
	next  memory.Embedder
	cache *ristretto.Cache
}

// Option configures the cache.
type Option func(*config)

type config struct {
	maxBytes int64
	metrics  bool
}

// WithMaxBytes sets the cache budget in bytes of vector data.
func WithMaxBytes(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// WithMetrics enables ristretto hit/miss counters.
func WithMetrics() Option {
	return func(c *config) {
		c.metrics = true
	}
}

// New wraps next.
func New(next memory.Embedder, opts ...Option) (*Embedder, error) {
	if next == nil {
		return nil, goerr.New("embedder is required")
	}

	cfg := config{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(&cfg)
	}

	vecBytes := int64(next.Dimensions()) * 4
	if vecBytes <= 0 {
		vecBytes = 4
	}
	// ristretto recommends ~10x counters per item that fits.
	items := cfg.maxBytes / vecBytes
	if items < 1 {
		items = 1
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        items * 10,
		MaxCost:            cfg.maxBytes,
		BufferItems:        64,
		Metrics:            cfg.metrics,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding cache", goerr.V("max_bytes", cfg.maxBytes))
	}

	return &Embedder{next: next, cache: c}, nil
}

// Embed returns the cached vector for text or computes and stores it.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.get(text); ok {
		return vec, nil
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.set(text, vec)
	return clone(vec), nil
}

// EmbedBatch serves hits from the cache and sends only misses downstream.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if vec, ok := e.get(text); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, goerr.New("embedder returned wrong batch size",
			goerr.V("expected", len(missTexts)),
			goerr.V("got", len(vecs)),
			goerr.T(memory.ErrTagEmbedding),
		)
	}
	for j, i := range missIdx {
		e.set(missTexts[j], vecs[j])
		out[i] = clone(vecs[j])
	}
	return out, nil
}

// Dimensions implements memory.Embedder.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Wait blocks until buffered writes are applied.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Stats returns hit and miss counts. Both are zero unless WithMetrics was set.
func (e *Embedder) Stats() (hits, misses uint64) {
	if e.cache.Metrics == nil {
		return 0, 0
	}
	return e.cache.Metrics.Hits(), e.cache.Metrics.Misses()
}

// Close stops the cache's background goroutines.
func (e *Embedder) Close() {
	e.cache.Close()
}

func (e *Embedder) get(text string) ([]float32, bool) {
	v, ok := e.cache.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil, false
	}
	return clone(vec), true
}

func (e *Embedder) set(text string, vec []float32) {
	e.cache.Set(text, clone(vec), int64(len(vec))*4)
}

func clone(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}

var _ memory.Embedder = (*Embedder)(nil)
