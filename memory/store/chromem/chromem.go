package chromem

import (
	"context"
	"strconv"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-recall/memory"
)

const defaultCollection = "memories"

// Index wraps a chromem-go collection as an append-only slot index.
// chromem-go is a pure Go, embedded vector database; documents are keyed by
// the decimal slot number and compared by cosine similarity, which equals
// the inner product for unit vectors.
type Index struct {
	db  *chromem.DB
	col *chromem.Collection

	// mu serializes inserts so the slot check and the add happen together.
	mu     sync.Mutex
	closed bool
}

// New creates an empty in-memory index.
func New() (*Index, error) {
	return NewNamed(defaultCollection)
}

// NewNamed creates an empty in-memory index backed by a collection with
// the given name.
func NewNamed(name string) (*Index, error) {
	db := chromem.NewDB()

	col, err := db.CreateCollection(
		name,
		nil,
		noEmbedding, // vectors always come from the Store's embedder
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create collection", goerr.V("name", name))
	}

	return &Index{
		db:  db,
		col: col,
	}, nil
}

// Insert implements memory.Index.
func (x *Index) Insert(ctx context.Context, slot int, vector []float32) error {
	if len(vector) == 0 {
		return goerr.New("vector is empty", goerr.V("slot", slot))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return goerr.New("index is closed")
	}
	if n := x.col.Count(); slot != n {
		return goerr.New("slot out of order", goerr.V("slot", slot), goerr.V("len", n))
	}

	// chromem keeps the slice it is given; copy so callers can't mutate it.
	embedding := make([]float32, len(vector))
	copy(embedding, vector)

	doc := chromem.Document{
		ID:        strconv.Itoa(slot),
		Embedding: embedding,
	}
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add document", goerr.V("slot", slot))
	}
	return nil
}

// Search implements memory.Index.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]memory.Hit, error) {
	if k < 1 {
		return nil, goerr.New("k must be positive", goerr.V("k", k))
	}

	// chromem-go requires nResults <= collection size
	n := x.col.Count()
	if n == 0 {
		return []memory.Hit{}, nil
	}
	if k > n {
		k = n
	}

	results, err := x.col.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "chromem query failed", goerr.V("k", k))
	}

	hits := make([]memory.Hit, 0, len(results))
	for _, r := range results {
		slot, err := strconv.Atoi(r.ID)
		if err != nil {
			// Not one of ours; skip rather than fail the whole query.
			continue
		}
		hits = append(hits, memory.Hit{Slot: slot, Score: r.Similarity})
	}
	return hits, nil
}

// Len implements memory.Index.
func (x *Index) Len() int {
	return x.col.Count()
}

// Close implements memory.Index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	// chromem-go keeps everything in memory, nothing else to release
	return nil
}

func noEmbedding(_ context.Context, text string) ([]float32, error) {
	return nil, goerr.New("chromem index does not embed text", goerr.V("text_len", len(text)))
}

var _ memory.Index = (*Index)(nil)
