//go:build !onnx

package cli

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-recall/memory"
)

func (cfg *config) newONNXEmbedder() (memory.Embedder, func(), error) {
	return nil, nil, goerr.New("onnx embedder not available, rebuild with -tags onnx")
}
