// Package engine turns retrieved memories into an answer from a language
// model.
//
// Every provider implements memory.Answerer and shares the same prompt
// (see BuildPrompt). Wrap a provider in a Breaker so that outages surface as
// errors tagged memory.ErrTagLLMUnavailable instead of hanging requests.
package engine

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-recall/logging"
	"github.com/becomeliminal/nim-recall/memory"
)

// SystemPrompt is sent as the system message to every provider.
const SystemPrompt = "You are an empathetic, factual assistant helping recall personal memories."

const (
	// DefaultTemperature keeps answers close to the stored memories.
	DefaultTemperature = 0.3

	// DefaultMaxTokens bounds the answer length.
	DefaultMaxTokens = 1024
)

// Options are shared by all providers.
type Options struct {
	// Model overrides the provider's default model.
	Model string

	// MaxTokens is the maximum response tokens.
	MaxTokens int64

	// Temperature is the sampling temperature.
	Temperature float64

	// System overrides SystemPrompt.
	System string
}

func (o Options) withDefaults(model string) Options {
	if o.Model == "" {
		o.Model = model
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}
	if o.System == "" {
		o.System = SystemPrompt
	}
	return o
}

// complete is one provider round trip: system and user prompt in, text out.
type complete func(ctx context.Context, system, prompt string) (string, error)

// answer runs the shared ask flow for a provider.
func answer(ctx context.Context, provider string, opts Options, question string, memories []memory.ContextItem, call complete) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", goerr.New("question is empty", goerr.T(memory.ErrTagInput))
	}

	prompt := BuildPrompt(question, memories)
	logging.From(ctx).Debug("asking model",
		"provider", provider,
		"model", opts.Model,
		"memories", len(memories),
	)

	text, err := call(ctx, opts.System, prompt)
	if err != nil {
		return "", goerr.Wrap(err, "model call failed",
			goerr.V("provider", provider),
			goerr.V("model", opts.Model),
			goerr.T(memory.ErrTagLLMUnavailable),
		)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", goerr.New("model returned an empty answer",
			goerr.V("provider", provider),
			goerr.V("model", opts.Model),
			goerr.T(memory.ErrTagLLMUnavailable),
		)
	}
	return text, nil
}
