package engine

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/nim-recall/memory"
)

// DefaultClaudeModel is used when Options.Model is empty.
const DefaultClaudeModel = "claude-sonnet-4-20250514"

// MessagesAPI is the part of the Anthropic client Claude uses.
// *anthropic.MessageService satisfies it.
type MessagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Claude answers with Anthropic's Messages API.
type Claude struct {
	messages MessagesAPI
	opts     Options
}

// NewClaude creates a Claude answerer from an API key.
func NewClaude(apiKey string, opts Options) *Claude {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return NewClaudeWithClient(&client.Messages, opts)
}

// NewClaudeWithClient creates a Claude answerer over an existing client.
func NewClaudeWithClient(messages MessagesAPI, opts Options) *Claude {
	return &Claude{
		messages: messages,
		opts:     opts.withDefaults(DefaultClaudeModel),
	}
}

// Answer implements memory.Answerer.
func (c *Claude) Answer(ctx context.Context, question string, memories []memory.ContextItem) (string, error) {
	return answer(ctx, "claude", c.opts, question, memories, c.complete)
}

func (c *Claude) complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.opts.Model),
		MaxTokens: c.opts.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Temperature: anthropic.Float(c.opts.Temperature),
	}

	resp, err := c.messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

var _ memory.Answerer = (*Claude)(nil)
