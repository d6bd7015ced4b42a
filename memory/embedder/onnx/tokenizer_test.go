//go:build onnx

package onnx_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory/embedder/onnx"
)

func writeTokenizer(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestWordPieceTokenizer(t *testing.T) {
	path := writeTokenizer(t, `{"model":{"vocab":{"<unk>":3,"tea":10,"with":11,"play":12,"##ing":13}}}`)

	tok, err := onnx.LoadTokenizer(path, 3)
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 11}, tok.Tokenize("Tea, with"))
	assert.Equal(t, []int64{12, 13}, tok.Tokenize("playing!"))
	assert.Equal(t, []int64{3}, tok.Tokenize("xyz"))
	assert.Empty(t, tok.Tokenize("  ...  "))
}

func TestLoadTokenizer_Errors(t *testing.T) {
	_, err := onnx.LoadTokenizer(filepath.Join(t.TempDir(), "missing.json"), 3)
	assert.Error(t, err)

	_, err = onnx.LoadTokenizer(writeTokenizer(t, `{"model":{"vocab":{}}}`), 3)
	assert.Error(t, err)

	_, err = onnx.LoadTokenizer(writeTokenizer(t, `not json`), 3)
	assert.Error(t, err)
}

func TestNew_RequiresPaths(t *testing.T) {
	_, err := onnx.New(onnx.Config{})
	assert.Error(t, err)

	_, err = onnx.New(onnx.Config{ModelPath: "model.onnx"})
	assert.Error(t, err)
}
