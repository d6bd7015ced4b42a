package engine

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sony/gobreaker"

	"github.com/becomeliminal/nim-recall/logging"
	"github.com/becomeliminal/nim-recall/memory"
)

// BreakerConfig holds the configuration for the circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 3
	MaxFailures uint32

	// Timeout is how long the circuit stays open before letting a probe through.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required in
	// half-open state to close the circuit again.
	// Default: 2
	HalfOpenMaxSuccesses uint32
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	}
}

// Breaker wraps an Answerer with a circuit breaker. While the circuit is
// open, Answer fails fast with memory.ErrTagLLMUnavailable.
//
// A nil inner Answerer is allowed: every call then fails as unavailable,
// which lets the server run with retrieval only.
type Breaker struct {
	next memory.Answerer
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next memory.Answerer, cfg BreakerConfig) *Breaker {
	d := DefaultBreakerConfig()
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = d.MaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = d.HalfOpenMaxSuccesses
	}

	settings := gobreaker.Settings{
		Name:        "llm",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Interval:    0, // Don't clear counts periodically
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes and cancellations say nothing about the model's health.
			return err == nil ||
				memory.IsInput(err) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Default().Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Answer implements memory.Answerer.
func (b *Breaker) Answer(ctx context.Context, question string, memories []memory.ContextItem) (string, error) {
	if b.next == nil {
		return "", goerr.New("no language model configured", goerr.T(memory.ErrTagLLMUnavailable))
	}

	result, err := b.cb.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return b.next.Answer(ctx, question, memories)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", goerr.Wrap(err, "language model circuit is open",
				goerr.V("state", b.State()),
				goerr.T(memory.ErrTagLLMUnavailable),
			)
		}
		if memory.IsInput(err) || memory.IsLLMUnavailable(err) {
			return "", err
		}
		return "", goerr.Wrap(err, "language model call failed", goerr.T(memory.ErrTagLLMUnavailable))
	}

	text, _ := result.(string)
	return text, nil
}

// State returns "closed", "open" or "half-open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

var _ memory.Answerer = (*Breaker)(nil)
