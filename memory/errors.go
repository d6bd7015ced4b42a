package memory

import "github.com/m-mizutani/goerr/v2"

// Error tags. Callers classify failures with goerr.HasTag.
var (
	// ErrTagInput marks invalid arguments: blank text, non-positive top_k.
	ErrTagInput = goerr.NewTag("input")

	// ErrTagEmbedding marks an embedder failure or a vector of the wrong shape.
	ErrTagEmbedding = goerr.NewTag("embedding")

	// ErrTagConcurrency marks use of a Store after Close.
	ErrTagConcurrency = goerr.NewTag("concurrency")

	// ErrTagLLMUnavailable marks an Answerer that could not reach its model.
	ErrTagLLMUnavailable = goerr.NewTag("llm_unavailable")
)

// IsInput reports whether err is an input validation failure.
func IsInput(err error) bool { return goerr.HasTag(err, ErrTagInput) }

// IsEmbedding reports whether err came from the embedding step.
func IsEmbedding(err error) bool { return goerr.HasTag(err, ErrTagEmbedding) }

// IsLLMUnavailable reports whether err means the answer model is unreachable.
func IsLLMUnavailable(err error) bool { return goerr.HasTag(err, ErrTagLLMUnavailable) }

// IsClosed reports whether err came from a closed Store.
func IsClosed(err error) bool { return goerr.HasTag(err, ErrTagConcurrency) }
