//go:build onnx

package onnx

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/becomeliminal/nim-recall/logging"
	"github.com/becomeliminal/nim-recall/memory"
)

// Pooling selects how token states are reduced to one vector.
type Pooling string

const (
	// PoolingCLS takes the first token's state. Used by the *-dot-v1 models.
	PoolingCLS Pooling = "cls"
	// PoolingMean averages attended token states. Used by MiniLM models.
	PoolingMean Pooling = "mean"
)

// Config configures the ONNX embedder. Zero values select the defaults for
// multi-qa-mpnet-base-dot-v1 exported to ONNX.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// LibraryPath points at libonnxruntime. Empty uses the loader default.
	LibraryPath string

	// Dimensions is the embedding vector size (default: 768).
	Dimensions int

	// MaxSeqLen is the token window including special tokens (default: 128).
	MaxSeqLen int

	// Pooling is the reduction strategy (default: cls).
	Pooling Pooling

	// InputNames are the model inputs. MPNet takes input_ids and
	// attention_mask; BERT-style models add token_type_ids.
	InputNames []string

	// Special token ids (defaults: <s>=0, </s>=2, <unk>=3).
	StartToken int64
	EndToken   int64
	UnkToken   int64
}

func (c Config) withDefaults() Config {
	if c.Dimensions == 0 {
		c.Dimensions = 768
	}
	if c.MaxSeqLen == 0 {
		c.MaxSeqLen = 128
	}
	if c.Pooling == "" {
		c.Pooling = PoolingCLS
	}
	if len(c.InputNames) == 0 {
		c.InputNames = []string{"input_ids", "attention_mask"}
	}
	if c.StartToken == 0 && c.EndToken == 0 && c.UnkToken == 0 {
		c.StartToken, c.EndToken, c.UnkToken = 0, 2, 3
	}
	return c
}

var initOnce struct {
	sync.Once
	err error
}

// ONNXEmbedder generates embeddings using ONNX Runtime.
type ONNXEmbedder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *WordPieceTokenizer
	cfg       Config
}

// New creates a new ONNX embedder.
func New(cfg Config) (*ONNXEmbedder, error) {
	if cfg.ModelPath == "" {
		return nil, goerr.New("ModelPath is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, goerr.New("TokenizerPath is required")
	}
	cfg = cfg.withDefaults()

	initOnce.Do(func() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		initOnce.err = ort.InitializeEnvironment()
	})
	if initOnce.err != nil {
		return nil, goerr.Wrap(initOnce.err, "failed to initialize ONNX runtime")
	}

	tokenizer, err := LoadTokenizer(cfg.TokenizerPath, cfg.UnkToken)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		cfg.InputNames,
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create ONNX session", goerr.V("model", cfg.ModelPath))
	}

	logging.Default().Info("onnx embedder ready",
		"model", cfg.ModelPath,
		"dimensions", cfg.Dimensions,
		"pooling", cfg.Pooling,
	)

	return &ONNXEmbedder{
		session:   session,
		tokenizer: tokenizer,
		cfg:       cfg,
	}, nil
}

// Embed converts text to embedding vector.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.New("cannot embed blank text", goerr.T(memory.ErrTagEmbedding))
	}

	maxLen := e.cfg.MaxSeqLen
	tokens := e.tokenizer.Tokenize(text)
	if len(tokens) > maxLen-2 { // Reserve space for start and end tokens
		tokens = tokens[:maxLen-2]
	}

	inputIDs := make([]int64, maxLen)
	attentionMask := make([]int64, maxLen)
	tokenTypeIDs := make([]int64, maxLen)

	inputIDs[0] = e.cfg.StartToken
	attentionMask[0] = 1
	for i, tok := range tokens {
		inputIDs[i+1] = tok
		attentionMask[i+1] = 1
	}
	endPos := len(tokens) + 1
	inputIDs[endPos] = e.cfg.EndToken
	attentionMask[endPos] = 1

	shape := ort.NewShape(1, int64(maxLen))
	byName := map[string][]int64{
		"input_ids":      inputIDs,
		"attention_mask": attentionMask,
		"token_type_ids": tokenTypeIDs,
	}

	inputs := make([]ort.Value, 0, len(e.cfg.InputNames))
	defer func() {
		for _, in := range inputs {
			in.Destroy()
		}
	}()
	for _, name := range e.cfg.InputNames {
		data, ok := byName[name]
		if !ok {
			return nil, goerr.New("unsupported model input", goerr.V("name", name), goerr.T(memory.ErrTagEmbedding))
		}
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create input tensor", goerr.V("name", name), goerr.T(memory.ErrTagEmbedding))
		}
		inputs = append(inputs, tensor)
	}

	// Outputs are allocated by Run.
	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, goerr.Wrap(err, "ONNX inference failed", goerr.T(memory.ErrTagEmbedding))
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, goerr.New("unexpected output tensor type", goerr.T(memory.ErrTagEmbedding))
	}

	embedding, err := e.pool(outputTensor.GetData(), outputTensor.GetShape(), attentionMask)
	if err != nil {
		return nil, err
	}
	return normalize(embedding), nil
}

// EmbedBatch embeds texts one by one; the model is exported with batch size 1.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed batch item", goerr.V("index", i), goerr.T(memory.ErrTagEmbedding))
		}
		out[i] = vec
	}
	return out, nil
}

func (e *ONNXEmbedder) pool(data []float32, shape ort.Shape, mask []int64) ([]float32, error) {
	dims := e.cfg.Dimensions

	switch len(shape) {
	case 2:
		// Already pooled: [1, hidden]
		if len(data) < dims {
			return nil, goerr.New("output dimension mismatch",
				goerr.V("got", len(data)), goerr.V("expected", dims), goerr.T(memory.ErrTagEmbedding))
		}
		out := make([]float32, dims)
		copy(out, data[:dims])
		return out, nil

	case 3:
		// [batch, seq_len, hidden]
		seqLen, hidden := int(shape[1]), int(shape[2])
		if shape[0] != 1 {
			return nil, goerr.New("expected batch size 1", goerr.V("got", shape[0]), goerr.T(memory.ErrTagEmbedding))
		}
		if hidden != dims {
			return nil, goerr.New("hidden size mismatch",
				goerr.V("got", hidden), goerr.V("expected", dims), goerr.T(memory.ErrTagEmbedding))
		}

		out := make([]float32, dims)
		if e.cfg.Pooling == PoolingCLS {
			copy(out, data[:dims])
			return out, nil
		}

		var attended float32
		for i := 0; i < seqLen; i++ {
			if mask[i] == 0 {
				continue
			}
			attended++
			offset := i * hidden
			for j := 0; j < hidden; j++ {
				out[j] += data[offset+j]
			}
		}
		for j := range out {
			out[j] /= attended
		}
		return out, nil

	default:
		return nil, goerr.New("unexpected output shape", goerr.V("shape", shape), goerr.T(memory.ErrTagEmbedding))
	}
}

// Dimensions returns the embedding vector size.
func (e *ONNXEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Close releases ONNX resources.
func (e *ONNXEmbedder) Close() error {
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return goerr.Wrap(err, "failed to destroy ONNX session")
		}
	}
	return nil
}

// normalize converts embedding to unit vector.
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

// WordPieceTokenizer handles WordPiece tokenization for BERT and MPNet vocabularies.
type WordPieceTokenizer struct {
	vocab    map[string]int
	unkToken int64
}

// LoadTokenizer loads the vocabulary from a Hugging Face tokenizer.json.
func LoadTokenizer(path string, unkToken int64) (*WordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read tokenizer", goerr.V("path", path))
	}

	var tokenizerData struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizerData); err != nil {
		return nil, goerr.Wrap(err, "failed to parse tokenizer", goerr.V("path", path))
	}
	if len(tokenizerData.Model.Vocab) == 0 {
		return nil, goerr.New("tokenizer has empty vocabulary", goerr.V("path", path))
	}

	return &WordPieceTokenizer{
		vocab:    tokenizerData.Model.Vocab,
		unkToken: unkToken,
	}, nil
}

// Tokenize converts text to token IDs.
func (t *WordPieceTokenizer) Tokenize(text string) []int64 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r)
	})

	var tokens []int64
	for _, word := range words {
		word = strings.TrimFunc(word, unicode.IsPunct)
		if word == "" {
			continue
		}

		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}

		for _, sub := range t.wordPieces(word) {
			if id, ok := t.vocab[sub]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, t.unkToken)
			}
		}
	}
	return tokens
}

// wordPieces splits a word into the longest matching vocabulary pieces.
// The empty string stands for the unknown token.
func (t *WordPieceTokenizer) wordPieces(word string) []string {
	runes := []rune(word)
	var pieces []string
	start := 0

	for start < len(runes) {
		end := len(runes)
		found := false

		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				pieces = append(pieces, sub)
				start = end
				found = true
				break
			}
			end--
		}

		if !found {
			// A word that cannot be fully split maps to a single unknown token.
			return []string{""}
		}
	}
	return pieces
}

var _ memory.Embedder = (*ONNXEmbedder)(nil)
