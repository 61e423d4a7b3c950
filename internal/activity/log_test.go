package activity

import (
	"context"
	"fmt"
	"testing"

	"github.com/rohankatakam/relay/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRepo   = "https://github.com/acme/web"
	testBranch = "main"
)

func event(ts int64, path string, index int) Event {
	return Event{
		ID:        EventID(ts, "alice", "WRITING", path, index),
		FilePath:  path,
		UserID:    "alice",
		UserName:  "alice",
		Status:    "WRITING",
		Message:   "editing",
		Timestamp: ts,
	}
}

func TestRecordAndRecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	log := NewLog(kv.NewMemory())

	require.NoError(t, log.Record(ctx, testRepo, testBranch, []Event{event(1000, "src/a.ts", 0)}))
	require.NoError(t, log.Record(ctx, testRepo, testBranch, []Event{event(2000, "src/b.ts", 0)}))

	events, err := log.Recent(ctx, testRepo, testBranch, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "src/b.ts", events[0].FilePath)
	assert.Equal(t, "src/a.ts", events[1].FilePath)
}

func TestRecordTrimsToMaxRetained(t *testing.T) {
	ctx := context.Background()
	log := NewLog(kv.NewMemory())

	for i := 0; i < MaxRetained+20; i++ {
		e := event(int64(i), fmt.Sprintf("src/f%d.ts", i), 0)
		require.NoError(t, log.Record(ctx, testRepo, testBranch, []Event{e}))
	}

	events, err := log.Recent(ctx, testRepo, testBranch, MaxRetained)
	require.NoError(t, err)
	assert.Len(t, events, MaxRetained)
	// Newest entry survives; the oldest fell off
	assert.Equal(t, fmt.Sprintf("src/f%d.ts", MaxRetained+19), events[0].FilePath)
}

func TestRecentLimitClamp(t *testing.T) {
	ctx := context.Background()
	log := NewLog(kv.NewMemory())

	for i := 0; i < 10; i++ {
		require.NoError(t, log.Record(ctx, testRepo, testBranch, []Event{event(int64(i), "src/a.ts", i)}))
	}

	events, err := log.Recent(ctx, testRepo, testBranch, 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)

	// Over-large limits are capped, not errors
	events, err = log.Recent(ctx, testRepo, testBranch, MaxRetained+1000)
	require.NoError(t, err)
	assert.Len(t, events, 10)
}

func TestClearReturnsPriorLength(t *testing.T) {
	ctx := context.Background()
	log := NewLog(kv.NewMemory())

	require.NoError(t, log.Record(ctx, testRepo, testBranch, []Event{
		event(1000, "src/a.ts", 0),
		event(1000, "src/b.ts", 1),
	}))

	cleared, err := log.Clear(ctx, testRepo, testBranch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cleared)

	events, err := log.Recent(ctx, testRepo, testBranch, 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	cleared, err = log.Clear(ctx, testRepo, testBranch)
	require.NoError(t, err)
	assert.Zero(t, cleared)
}

func TestEventIDIsStable(t *testing.T) {
	a := EventID(1000, "alice", "WRITING", "src/a.ts", 0)
	b := EventID(1000, "alice", "WRITING", "src/a.ts", 0)
	c := EventID(1000, "alice", "WRITING", "src/a.ts", 1)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
