package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory"
	"github.com/becomeliminal/nim-recall/memory/embedder/mock"
	"github.com/becomeliminal/nim-recall/memory/store/chromem"
)

type scriptReader struct {
	lines   []string
	prompts []string
	end     error
}

func (s *scriptReader) SetPrompt(p string) {
	s.prompts = append(s.prompts, p)
}

func (s *scriptReader) Readline() (string, error) {
	if len(s.lines) == 0 {
		if s.end != nil {
			return "", s.end
		}
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

type echoAnswerer struct {
	calls int
}

func (e *echoAnswerer) Answer(_ context.Context, _ string, memories []memory.ContextItem) (string, error) {
	e.calls++
	return "You remembered: " + memories[0].Text, nil
}

func newTestManager(t *testing.T, answerer memory.Answerer) *memory.Manager {
	t.Helper()
	idx, err := chromem.New()
	require.NoError(t, err)
	store, err := memory.New(mock.New(mock.WithDimensions(32)), idx)
	require.NoError(t, err)
	mgr, err := memory.NewManager(store, answerer)
	require.NoError(t, err)
	return mgr
}

func TestRunREPL_Session(t *testing.T) {
	answerer := &echoAnswerer{}
	mgr := newTestManager(t, answerer)
	in := &scriptReader{lines: []string{
		"ask", "anything?",
		"ADD", "Tea with Anil", "happy",
		"list",
		"ask", "tea with whom?",
		"dance",
		"",
		"exit",
	}}
	var out bytes.Buffer

	require.NoError(t, runREPL(context.Background(), in, &out, mgr))

	got := out.String()
	assert.Contains(t, got, "Memory Recall Assistant")
	assert.Contains(t, got, "No memories stored yet.")
	assert.Contains(t, got, "Memory added.")
	assert.Contains(t, got, "Tea with Anil (feeling: happy)")
	assert.Contains(t, got, "\nAssistant: You remembered: Tea with Anil\n\n")
	assert.Contains(t, got, "Invalid choice. Use 'add', 'ask', 'list' or 'exit'.")
	assert.Contains(t, got, "Goodbye!")

	assert.Equal(t, 1, answerer.calls)
	assert.Contains(t, in.prompts, "Enter memory: ")
	assert.Contains(t, in.prompts, "How did it feel? (optional): ")
	assert.Contains(t, in.prompts, "Ask a question: ")
}

func TestRunREPL_BlankMemoryIsSkipped(t *testing.T) {
	mgr := newTestManager(t, &echoAnswerer{})
	in := &scriptReader{lines: []string{"add", "   ", "quit"}}
	var out bytes.Buffer

	require.NoError(t, runREPL(context.Background(), in, &out, mgr))
	assert.Zero(t, mgr.Store().Len())
	assert.NotContains(t, out.String(), "Memory added.")
}

func TestRunREPL_EndsOnEOFAndInterrupt(t *testing.T) {
	for _, end := range []error{io.EOF, readline.ErrInterrupt} {
		mgr := newTestManager(t, &echoAnswerer{})
		var out bytes.Buffer

		require.NoError(t, runREPL(context.Background(), &scriptReader{end: end}, &out, mgr))
		assert.Contains(t, out.String(), "Goodbye!")
	}
}

func TestRunREPL_ReadError(t *testing.T) {
	mgr := newTestManager(t, &echoAnswerer{})
	var out bytes.Buffer

	err := runREPL(context.Background(), &scriptReader{end: errors.New("tty gone")}, &out, mgr)
	assert.Error(t, err)
}

func TestLoadMemories(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	path := filepath.Join(dir, "memories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- text: Tea with Anil
  emotion: happy
- text: Doctor visit
  timestamp: "2024-04-02T10:00:00Z"
`), 0o600))

	mgr := newTestManager(t, &echoAnswerer{})
	require.NoError(t, loadMemories(ctx, mgr.Store(), path))

	records, err := mgr.Store().ListMemories(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Tea with Anil", records[0].Text)
	assert.Equal(t, "happy", records[0].Emotion)
	assert.Equal(t, "Doctor visit", records[1].Text)

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, loadMemories(ctx, mgr.Store(), filepath.Join(dir, "nope.yaml")))
	})

	t.Run("invalid entry", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("- text: ''\n"), 0o600))
		err := loadMemories(ctx, mgr.Store(), bad)
		require.Error(t, err)
		assert.True(t, memory.IsInput(err))
	})
}
