package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/becomeliminal/nim-recall/engine"
	"github.com/becomeliminal/nim-recall/memory"
)

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
	}
}

func TestGemini_Answer(t *testing.T) {
	fake := &fakeModels{resp: textResponse("You had lunch with Meera.")}
	g := engine.NewGeminiWithClient(fake, engine.Options{})

	got, err := g.Answer(context.Background(), "Who did I have lunch with?", lunch)
	require.NoError(t, err)
	assert.Equal(t, "You had lunch with Meera.", got)

	assert.Equal(t, engine.DefaultGeminiModel, fake.model)
	require.Len(t, fake.contents, 1)
	assert.Contains(t, fake.contents[0].Parts[0].Text, "Lunch with Meera")

	require.NotNil(t, fake.config)
	assert.Equal(t, engine.SystemPrompt, fake.config.SystemInstruction.Parts[0].Text)
	require.NotNil(t, fake.config.Temperature)
	assert.InDelta(t, engine.DefaultTemperature, *fake.config.Temperature, 1e-6)
	assert.EqualValues(t, engine.DefaultMaxTokens, fake.config.MaxOutputTokens)
}

func TestGemini_Errors(t *testing.T) {
	ctx := context.Background()

	g := engine.NewGeminiWithClient(&fakeModels{err: errors.New("unavailable")}, engine.Options{})
	_, err := g.Answer(ctx, "q", lunch)
	require.Error(t, err)
	assert.True(t, memory.IsLLMUnavailable(err))

	g = engine.NewGeminiWithClient(&fakeModels{resp: &genai.GenerateContentResponse{}}, engine.Options{})
	_, err = g.Answer(ctx, "q", lunch)
	require.Error(t, err)
	assert.True(t, memory.IsLLMUnavailable(err))
}
