package engine_test

import (
	"context"

	"github.com/becomeliminal/nim-recall/memory"
)

var lunch = []memory.ContextItem{{Text: "Lunch with Meera", Emotion: "happy"}}

type stubAnswerer struct {
	calls  int
	answer string
	err    error
}

func (s *stubAnswerer) Answer(_ context.Context, _ string, _ []memory.ContextItem) (string, error) {
	s.calls++
	return s.answer, s.err
}
