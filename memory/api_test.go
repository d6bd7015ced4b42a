package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-recall/memory"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-03-05T10:20:30Z", time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)},
		{"2024-03-05T10:20:30.5+05:30", time.Date(2024, 3, 5, 4, 50, 30, 500_000_000, time.UTC)},
		{"2024-03-05T10:20:30.123456", time.Date(2024, 3, 5, 10, 20, 30, 123_456_000, time.UTC)},
		{"2024-03-05T10:20", time.Date(2024, 3, 5, 10, 20, 0, 0, time.UTC)},
		{"2024-03-05 10:20:30", time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)},
		{" 2024-03-05 ", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := memory.ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	_, err := memory.ParseTimestamp("last tuesday")
	require.Error(t, err)
	assert.True(t, memory.IsInput(err))
}

func TestStore_AddMemory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.AddMemory(ctx, "Painted with grandson", "proud", "2023-12-25T11:00:00Z"))
	require.NoError(t, store.AddMemory(ctx, "Called the bank", "", ""))

	records, err := store.ListMemories(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// The inferred-now record sorts first; the explicit one is older.
	assert.Equal(t, "Called the bank", records[0].Text)
	assert.Empty(t, records[0].Emotion)
	assert.Equal(t, "Painted with grandson", records[1].Text)
	assert.Equal(t, "proud", records[1].Emotion)
	assert.True(t, time.Date(2023, 12, 25, 11, 0, 0, 0, time.UTC).Equal(records[1].Timestamp))
}

func TestStore_AddMemoryInvalidTimestamp(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.AddMemory(ctx, "text", "", "not a date")
	require.Error(t, err)
	assert.True(t, memory.IsInput(err))
	assert.Zero(t, store.Len())
}

func TestStore_RetrieveMemoriesDefaultTopK(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	assert.Equal(t, 3, store.DefaultTopK())

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AddMemory(ctx, fmt.Sprintf("walk number %d", i), "", ""))
	}

	got, err := store.RetrieveMemories(ctx, "walk", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = store.RetrieveMemories(ctx, "walk", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.RetrieveMemories(ctx, "walk", -1)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
