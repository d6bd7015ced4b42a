//go:build onnx

package cli

import (
	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/memory/embedder/onnx"
)

func (cfg *config) newONNXEmbedder() (memory.Embedder, func(), error) {
	e, err := onnx.New(onnx.Config{
		ModelPath:     cfg.onnxModel,
		TokenizerPath: cfg.onnxTokenizer,
		LibraryPath:   cfg.onnxLibrary,
		Dimensions:    int(cfg.dimensions),
	})
	if err != nil {
		return nil, nil, err
	}
	return e, func() { _ = e.Close() }, nil
}
