package engine

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/becomeliminal/nim-recall/memory"
)

// DefaultGeminiModel is used when Options.Model is empty.
const DefaultGeminiModel = "gemini-2.5-flash"

// GenerateAPI is the part of the genai client Gemini uses.
// *genai.Models satisfies it.
type GenerateAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini answers with Google's Gemini models.
type Gemini struct {
	models GenerateAPI
	opts   Options
}

// NewGemini connects to Vertex AI, or to the Gemini API when apiKey is set.
func NewGemini(ctx context.Context, project, location, apiKey string, opts Options) (*Gemini, error) {
	cc := &genai.ClientConfig{
		Project:  project,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}
	if apiKey != "" {
		cc = &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		}
	} else if project == "" {
		return nil, goerr.New("gemini project or API key is required")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}
	return NewGeminiWithClient(client.Models, opts), nil
}

// NewGeminiWithClient creates a Gemini answerer over an existing client.
func NewGeminiWithClient(models GenerateAPI, opts Options) *Gemini {
	return &Gemini{
		models: models,
		opts:   opts.withDefaults(DefaultGeminiModel),
	}
}

// Answer implements memory.Answerer.
func (g *Gemini) Answer(ctx context.Context, question string, memories []memory.ContextItem) (string, error) {
	return answer(ctx, "gemini", g.opts, question, memories, g.complete)
}

func (g *Gemini) complete(ctx context.Context, system, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, ""),
		Temperature:       genai.Ptr(float32(g.opts.Temperature)),
		MaxOutputTokens:   int32(g.opts.MaxTokens),
	}

	resp, err := g.models.GenerateContent(ctx, g.opts.Model, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

var _ memory.Answerer = (*Gemini)(nil)
