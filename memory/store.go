package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/becomeliminal/nim-recall/logging"
)

const instrumentationName = "github.com/becomeliminal/nim-recall/memory"

// Store owns the memory records and the embedding index. Both share the
// same slot numbering and always have the same length.
//
// Writes (Add) run their lookup-and-mutate step under one exclusive lock.
// The embedding for a new memory is computed outside the lock; the write
// section looks the text up again before appending, so concurrent adds of
// the same text still end up in a single record. Reads take the shared lock.
type Store struct {
	embedder Embedder
	index    Index
	policy   DatePolicy
	now      func() time.Time
	config   Config

	tracer  trace.Tracer
	adds    metric.Int64Counter
	updates metric.Int64Counter
	queries metric.Int64Counter

	mu      sync.RWMutex
	records []Record
	byKey   map[string]int // normalized text -> slot
	seq     uint64
	dims    int
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithDatePolicy sets how relative dates are inferred from memory text.
func WithDatePolicy(p DatePolicy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(s *Store) {
		s.config = cfg
	}
}

// New creates a Store over an embedder and an empty index.
func New(embedder Embedder, index Index, opts ...Option) (*Store, error) {
	if embedder == nil {
		return nil, goerr.New("embedder is required")
	}
	if index == nil {
		return nil, goerr.New("index is required")
	}
	if index.Len() != 0 {
		return nil, goerr.New("index must be empty", goerr.V("len", index.Len()))
	}

	s := &Store{
		embedder: embedder,
		index:    index,
		policy:   DefaultDatePolicy(),
		now:      time.Now,
		config:   DefaultConfig(),
		byKey:    make(map[string]int),
		dims:     embedder.Dimensions(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.config = s.config.withDefaults()
	if s.policy == nil {
		s.policy = NoDatePolicy
	}

	s.tracer = otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)
	s.adds = counter(meter, "memory.store.adds", "Memories created")
	s.updates = counter(meter, "memory.store.updates", "Memories updated in place")
	s.queries = counter(meter, "memory.store.searches", "Similarity searches served")

	return s, nil
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		logging.Default().Warn("failed to create counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}

// AddOption configures a single Add call.
type AddOption func(*addOptions)

type addOptions struct {
	emotion   string
	timestamp *time.Time
}

// WithEmotion attaches an emotion tag such as "happy" or "anxious".
func WithEmotion(emotion string) AddOption {
	return func(o *addOptions) {
		o.emotion = strings.TrimSpace(emotion)
	}
}

// WithTimestamp sets the time the memory refers to, skipping inference.
func WithTimestamp(t time.Time) AddOption {
	return func(o *addOptions) {
		o.timestamp = &t
	}
}

// Add stores a memory, or updates the existing one whose normalized text is
// equal. An update refreshes the timestamp, replaces the emotion only when a
// new one is given and keeps the new casing of the text. It never touches
// the index.
func (s *Store) Add(ctx context.Context, text string, opts ...AddOption) (err error) {
	ctx, span := s.tracer.Start(ctx, "memory.Store.Add")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(text) == "" {
		return goerr.New("memory text is empty", goerr.T(ErrTagInput))
	}

	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	key := Normalize(text)
	ts := s.resolveTimestamp(text, o.timestamp)

	updated, err := s.update(ctx, key, text, o.emotion, ts)
	if err != nil || updated {
		return err
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed()
	}

	// Another Add may have created the record while we were embedding.
	if slot, ok := s.byKey[key]; ok {
		s.applyUpdate(ctx, slot, text, o.emotion, ts)
		return nil
	}

	slot := len(s.records)
	if err := s.index.Insert(ctx, slot, vec); err != nil {
		return goerr.Wrap(err, "failed to insert embedding into index", goerr.V("slot", slot))
	}

	s.seq++
	s.records = append(s.records, Record{
		Text:      text,
		Emotion:   o.emotion,
		Timestamp: ts,
		Slot:      slot,
		seq:       s.seq,
	})
	s.byKey[key] = slot

	s.adds.Add(ctx, 1)
	span.SetAttributes(attribute.Int("memory.slot", slot), attribute.Bool("memory.updated", false))
	logging.From(ctx).Info("memory added",
		"slot", slot,
		"emotion", o.emotion,
		"timestamp", ts.Format(time.RFC3339),
		"text", truncateLog(text, 50),
	)
	return nil
}

// update applies an in-place update when the key already exists.
func (s *Store) update(ctx context.Context, key, text, emotion string, ts time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errClosed()
	}

	slot, ok := s.byKey[key]
	if !ok {
		return false, nil
	}
	s.applyUpdate(ctx, slot, text, emotion, ts)
	return true, nil
}

// applyUpdate must be called with s.mu held for writing.
func (s *Store) applyUpdate(ctx context.Context, slot int, text, emotion string, ts time.Time) {
	rec := &s.records[slot]
	rec.Text = text
	rec.Timestamp = ts
	if emotion != "" {
		rec.Emotion = emotion
	}
	s.seq++
	rec.seq = s.seq

	s.updates.Add(ctx, 1)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("memory.slot", slot), attribute.Bool("memory.updated", true))
	logging.From(ctx).Info("memory updated",
		"slot", slot,
		"emotion", rec.Emotion,
		"timestamp", ts.Format(time.RFC3339),
		"text", truncateLog(text, 50),
	)
}

// Search returns up to topK memories most similar to query, most similar
// first. An empty store yields an empty result, not an error.
func (s *Store) Search(ctx context.Context, query string, topK int) (items []ContextItem, err error) {
	ctx, span := s.tracer.Start(ctx, "memory.Store.Search")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(query) == "" {
		return nil, goerr.New("query is empty", goerr.T(ErrTagInput))
	}
	if topK < 1 {
		return nil, goerr.New("top_k must be positive", goerr.T(ErrTagInput), goerr.V("top_k", topK))
	}
	if topK > s.config.MaxTopK {
		topK = s.config.MaxTopK
	}

	s.queries.Add(ctx, 1)

	n, err := s.length()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		logging.From(ctx).Debug("search on empty store", "query", truncateLog(query, 50))
		return []ContextItem{}, nil
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed()
	}

	// The index scores in parallel, so equal scores come back in any order.
	// Rank every record here to make ties at the top_k cut deterministic.
	hits, err := s.index.Search(ctx, vec, len(s.records))
	if err != nil {
		return nil, goerr.Wrap(err, "index search failed", goerr.V("top_k", topK))
	}

	known := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Slot < 0 || h.Slot >= len(s.records) {
			logging.From(ctx).Warn("index returned unknown slot", "slot", h.Slot, "records", len(s.records))
			continue
		}
		known = append(known, h)
	}
	sortHits(known)
	if len(known) > topK {
		known = known[:topK]
	}

	items = make([]ContextItem, 0, len(known))
	for _, h := range known {
		rec := s.records[h.Slot]
		items = append(items, ContextItem{Text: rec.Text, Emotion: rec.Emotion})
	}

	span.SetAttributes(attribute.Int("memory.top_k", topK), attribute.Int("memory.results", len(items)))
	logging.From(ctx).Debug("memories retrieved",
		"query", truncateLog(query, 50),
		"top_k", topK,
		"results", len(items),
	)
	return items, nil
}

// sortHits orders hits by descending score, then by insertion order.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Slot < hits[j].Slot
	})
}

// List returns a copy of all records, newest first. Records with equal
// timestamps are ordered by most recent add or update.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, errClosed()
	}
	out := make([]Record, len(s.records))
	copy(out, s.records)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].seq > out[j].seq
	})
	return out, nil
}

// Len returns the number of records (and index slots).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close releases the index. Further calls fail with ErrTagConcurrency.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.index.Close(); err != nil {
		return goerr.Wrap(err, "failed to close index")
	}
	return nil
}

func (s *Store) length() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed()
	}
	return len(s.records), nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed text", goerr.T(ErrTagEmbedding))
	}
	if s.dims > 0 && len(vec) != s.dims {
		return nil, goerr.New("embedding dimension mismatch",
			goerr.T(ErrTagEmbedding),
			goerr.V("expected", s.dims),
			goerr.V("actual", len(vec)),
		)
	}
	if len(vec) == 0 {
		return nil, goerr.New("embedder returned an empty vector", goerr.T(ErrTagEmbedding))
	}
	return vec, nil
}

func (s *Store) resolveTimestamp(text string, explicit *time.Time) time.Time {
	if explicit != nil {
		return *explicit
	}
	now := s.now()
	if offset, ok := s.policy.Resolve(text); ok {
		return now.In(s.config.Location).AddDate(0, 0, offset)
	}
	return now.UTC()
}

func errClosed() error {
	return goerr.New("memory store is closed", goerr.T(ErrTagConcurrency))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
