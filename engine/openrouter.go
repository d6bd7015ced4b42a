package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-recall/memory"
)

const (
	// DefaultOpenRouterURL is the OpenRouter OpenAI-compatible endpoint.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// DefaultOpenRouterModel is used when Options.Model is empty.
	DefaultOpenRouterModel = "mistralai/mistral-7b-instruct"
)

// OpenAICompat answers through any OpenAI-compatible chat completions
// endpoint, OpenRouter by default.
type OpenAICompat struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	opts       Options
}

// NewOpenAICompat creates an answerer for baseURL. An empty baseURL selects
// OpenRouter.
func NewOpenAICompat(baseURL, apiKey string, httpClient *http.Client, opts Options) *OpenAICompat {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAICompat{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		opts:       opts.withDefaults(DefaultOpenRouterModel),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int64         `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Answer implements memory.Answerer.
func (c *OpenAICompat) Answer(ctx context.Context, question string, memories []memory.ContextItem) (string, error) {
	return answer(ctx, "openai_compat", c.opts, question, memories, c.complete)
}

func (c *OpenAICompat) complete(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "chat request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", goerr.New("chat completions returned an error status",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(b)),
		)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", goerr.Wrap(err, "failed to decode chat response")
	}
	if len(out.Choices) == 0 {
		return "", goerr.New("chat response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}

var _ memory.Answerer = (*OpenAICompat)(nil)
