package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/memory/embedder/mock"
	"github.com/becomeliminal/nim-recall/memory/store/chromem"
)

var baseTime = time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

// fakeClock advances by one minute on each call so records get distinct
// timestamps in insertion order.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: baseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Minute)
	return t
}

// countingEmbedder counts Embed calls on top of the hash embedder.
type countingEmbedder struct {
	memory.Embedder
	calls atomic.Int64
}

func newCountingEmbedder(dims int) *countingEmbedder {
	return &countingEmbedder{Embedder: mock.New(mock.WithDimensions(dims))}
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return e.Embedder.Embed(ctx, text)
}

// brokenEmbedder always fails, or returns vectors of the wrong size.
type brokenEmbedder struct {
	dims    int
	outDims int
	err     error
}

func (e *brokenEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return make([]float32, e.outDims), nil
}

func (e *brokenEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (e *brokenEmbedder) Dimensions() int { return e.dims }

// stubIndex accepts inserts and returns canned hits. Setting insertErr or
// searchErr makes the matching call fail.
type stubIndex struct {
	mu        sync.Mutex
	n         int
	slots     []int
	hits      []memory.Hit
	insertErr error
	searchErr error
}

func (x *stubIndex) Insert(ctx context.Context, slot int, vector []float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.insertErr != nil {
		return x.insertErr
	}
	x.n++
	x.slots = append(x.slots, slot)
	return nil
}

func (x *stubIndex) Search(ctx context.Context, query []float32, k int) ([]memory.Hit, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.searchErr != nil {
		return nil, x.searchErr
	}
	return x.hits, nil
}

func (x *stubIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.n
}

func (x *stubIndex) Close() error { return nil }

// stubAnswerer records what it was asked.
type stubAnswerer struct {
	mu       sync.Mutex
	calls    int
	question string
	memories []memory.ContextItem
	answer   string
	err      error
}

func (a *stubAnswerer) Answer(ctx context.Context, question string, memories []memory.ContextItem) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.question = question
	a.memories = memories
	return a.answer, a.err
}

func newTestStore(t *testing.T, opts ...memory.Option) *memory.Store {
	t.Helper()

	index, err := chromem.New()
	require.NoError(t, err)

	clock := newFakeClock()
	opts = append([]memory.Option{memory.WithClock(clock.Now)}, opts...)

	store, err := memory.New(mock.New(mock.WithDimensions(64)), index, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func texts(items []memory.ContextItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out
}
