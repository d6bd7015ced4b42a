package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/engine"
	"github.com/becomeliminal/nim-recall/memory"
)

func TestBreaker_PassesThrough(t *testing.T) {
	inner := &stubAnswerer{answer: "hello"}
	b := engine.NewBreaker(inner, engine.BreakerConfig{})

	got, err := b.Answer(context.Background(), "q", lunch)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	inner := &stubAnswerer{err: errors.New("boom")}
	b := engine.NewBreaker(inner, engine.BreakerConfig{MaxFailures: 3, Timeout: time.Hour})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Answer(ctx, "q", lunch)
		require.Error(t, err)
		assert.True(t, memory.IsLLMUnavailable(err))
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Answer(ctx, "q", lunch)
	require.Error(t, err)
	assert.True(t, memory.IsLLMUnavailable(err))
	assert.Equal(t, 3, inner.calls, "open circuit must not call the model")
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	inner := &stubAnswerer{err: errors.New("boom")}
	b := engine.NewBreaker(inner, engine.BreakerConfig{
		MaxFailures:          1,
		Timeout:              10 * time.Millisecond,
		HalfOpenMaxSuccesses: 1,
	})
	ctx := context.Background()

	_, err := b.Answer(ctx, "q", lunch)
	require.Error(t, err)
	assert.Equal(t, "open", b.State())

	inner.err = nil
	inner.answer = "back"
	require.Eventually(t, func() bool {
		return b.State() == "half-open"
	}, time.Second, 5*time.Millisecond)

	got, err := b.Answer(ctx, "q", lunch)
	require.NoError(t, err)
	assert.Equal(t, "back", got)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_InputErrorsDoNotTrip(t *testing.T) {
	inner := &stubAnswerer{err: goerr.New("question is empty", goerr.T(memory.ErrTagInput))}
	b := engine.NewBreaker(inner, engine.BreakerConfig{MaxFailures: 1, Timeout: time.Hour})

	for i := 0; i < 3; i++ {
		_, err := b.Answer(context.Background(), "q", lunch)
		require.Error(t, err)
		assert.True(t, memory.IsInput(err))
		assert.False(t, memory.IsLLMUnavailable(err))
	}
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, 3, inner.calls)
}

func TestBreaker_CanceledContext(t *testing.T) {
	inner := &stubAnswerer{answer: "unused"}
	b := engine.NewBreaker(inner, engine.BreakerConfig{MaxFailures: 1, Timeout: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Answer(ctx, "q", lunch)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, inner.calls)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_NoModel(t *testing.T) {
	b := engine.NewBreaker(nil, engine.DefaultBreakerConfig())

	_, err := b.Answer(context.Background(), "q", lunch)
	require.Error(t, err)
	assert.True(t, memory.IsLLMUnavailable(err))
}
