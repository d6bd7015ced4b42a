package engine

import (
	"fmt"
	"strings"

	"github.com/becomeliminal/nim-recall/memory"
)

// FormatContext renders memories as the bullet list shown to the model.
// A memory with an emotion reads "- Memory: <text> (feeling: <emotion>)".
func FormatContext(memories []memory.ContextItem) string {
	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		if m.Emotion != "" {
			lines = append(lines, fmt.Sprintf("- Memory: %s (feeling: %s)", m.Text, m.Emotion))
		} else {
			lines = append(lines, fmt.Sprintf("- Memory: %s", m.Text))
		}
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt builds the user prompt asking for a gentle answer that
// refers to the relevant memory and how the person felt about it.
func BuildPrompt(question string, memories []memory.ContextItem) string {
	return fmt.Sprintf(promptTemplate, FormatContext(memories), question)
}

const promptTemplate = `You are a gentle, empathetic assistant helping a person with memory challenges.
When you answer, do two things:
1) Briefly refer to the relevant memory (quote or summarize).
2) Kindly mention how the user reported feeling about that memory, if available (for example: "You felt happy about this").

Use warm, reassuring language and keep responses concise and respectful.

Here are the stored memories and any reported emotions:
%s

Question: %s

Answer gently, referencing relevant memories and the associated feelings where appropriate.
`
