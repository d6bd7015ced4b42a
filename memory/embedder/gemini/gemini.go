package gemini

import (
	"context"
	"math"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/becomeliminal/nim-recall/memory"
)

const (
	DefaultModel      = "gemini-embedding-001"
	DefaultDimensions = 768
)

// Client is the part of the genai API the embedder needs.
// *genai.Models satisfies it.
type Client interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config configures a Gemini embedder.
type Config struct {
	// Project and Location select a Vertex AI backend.
	Project  string
	Location string

	// APIKey selects the Gemini API backend instead of Vertex AI.
	APIKey string

	// Model is the embedding model (default: gemini-embedding-001).
	Model string

	// Dimensions is the requested output dimensionality (default: 768).
	Dimensions int
}

// Embedder produces embeddings with Google's Gemini embedding models.
type Embedder struct {
	client     Client
	model      string
	dimensions int
}

// New connects to Gemini and returns an embedder.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	cc := &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	}
	if cfg.APIKey != "" {
		cc = &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
	} else if cfg.Project == "" {
		return nil, goerr.New("gemini project or API key is required")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}
	return NewWithClient(client.Models, cfg), nil
}

// NewWithClient builds an embedder over an existing client.
func NewWithClient(client Client, cfg Config) *Embedder {
	e := &Embedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
	if e.model == "" {
		e.model = DefaultModel
	}
	if e.dimensions <= 0 {
		e.dimensions = DefaultDimensions
	}
	return e
}

// Embed implements memory.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements memory.Embedder with a single EmbedContent call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, goerr.New("cannot embed blank text", goerr.V("index", i), goerr.T(memory.ErrTagEmbedding))
		}
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	resp, err := e.client.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: genai.Ptr(int32(e.dimensions)),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content",
			goerr.V("model", e.model),
			goerr.V("count", len(texts)),
			goerr.T(memory.ErrTagEmbedding),
		)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, goerr.New("unexpected number of embeddings",
			goerr.V("expected", len(texts)),
			goerr.V("got", got),
			goerr.T(memory.ErrTagEmbedding),
		)
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) != e.dimensions {
			return nil, goerr.New("embedding dimension mismatch",
				goerr.V("index", i),
				goerr.V("expected", e.dimensions),
				goerr.T(memory.ErrTagEmbedding),
			)
		}
		// Truncated Gemini embeddings are not unit length.
		out[i] = normalize(append([]float32(nil), emb.Values...))
	}
	return out, nil
}

// Dimensions implements memory.Embedder.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

var _ memory.Embedder = (*Embedder)(nil)
