package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/nim-recall/engine"
	"github.com/becomeliminal/nim-recall/memory"
)

func TestFormatContext(t *testing.T) {
	got := engine.FormatContext([]memory.ContextItem{
		{Text: "Lunch with Meera", Emotion: "happy"},
		{Text: "Paid the rent"},
	})
	assert.Equal(t, "- Memory: Lunch with Meera (feeling: happy)\n- Memory: Paid the rent", got)

	assert.Empty(t, engine.FormatContext(nil))
}

func TestBuildPrompt(t *testing.T) {
	prompt := engine.BuildPrompt("Who did I have lunch with?", []memory.ContextItem{
		{Text: "Lunch with Meera", Emotion: "happy"},
	})

	assert.Contains(t, prompt, "- Memory: Lunch with Meera (feeling: happy)")
	assert.Contains(t, prompt, "Question: Who did I have lunch with?")
	assert.Contains(t, prompt, "gentle, empathetic assistant")
}
