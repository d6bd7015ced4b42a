package memory

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// AddMemory is the request-layer entry point for storing a memory. emotion
// and timestamp may be empty; timestamp is an ISO-8601 string.
func (s *Store) AddMemory(ctx context.Context, text, emotion, timestamp string) error {
	opts := []AddOption{WithEmotion(emotion)}
	if strings.TrimSpace(timestamp) != "" {
		ts, err := ParseTimestamp(timestamp)
		if err != nil {
			return err
		}
		opts = append(opts, WithTimestamp(ts))
	}
	return s.Add(ctx, text, opts...)
}

// ListMemories returns every memory, newest first.
func (s *Store) ListMemories(ctx context.Context) ([]Record, error) {
	return s.List(ctx)
}

// RetrieveMemories returns up to topK memories similar to query. topK <= 0
// selects the configured default.
func (s *Store) RetrieveMemories(ctx context.Context, query string, topK int) ([]ContextItem, error) {
	if topK <= 0 {
		topK = s.config.DefaultTopK
	}
	return s.Search(ctx, query, topK)
}

// DefaultTopK returns the number of memories retrieved when unspecified.
func (s *Store) DefaultTopK() int {
	return s.config.DefaultTopK
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the common ISO-8601 variants sent by
// browsers and Python clients. Values without a zone are taken as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, goerr.New("invalid timestamp, expected ISO-8601",
		goerr.T(ErrTagInput),
		goerr.V("timestamp", value),
	)
}
