package eventstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHistoryProjection_CompletedRun(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()
	rec := NewRecorder(store)

	require.NoError(t, rec.RunStarted(ctx, "run-1", RunStartedPayload{Trigger: "cli"}))
	require.NoError(t, rec.RunCompleted(ctx, "run-1", RunCompletedPayload{
		Status:        "partial",
		Nodes:         2,
		Units:         map[string]int{"succeeded": 1, "failed": 1},
		Uploaded:      1,
		TriggerStatus: "fired",
	}))

	p := NewRunHistoryProjection(store, 10)
	require.NoError(t, p.Rebuild(ctx))

	run, ok := p.Run("run-1")
	require.True(t, ok)
	assert.Equal(t, "cli", run.Trigger)
	assert.Equal(t, "partial", run.Status)
	assert.Equal(t, 2, run.Nodes)
	assert.Equal(t, 1, run.Units["failed"])
	assert.Equal(t, "fired", run.TriggerStatus)
	require.NotNil(t, run.CompletedAt)
	assert.GreaterOrEqual(t, run.Duration, time.Duration(0))
}

func TestRunHistoryProjection_FailedRun(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()
	rec := NewRecorder(store)

	require.NoError(t, rec.RunStarted(ctx, "run-1", RunStartedPayload{Trigger: "schedule"}))
	require.NoError(t, rec.RunFailed(ctx, "run-1", "resolve", "node list unavailable", time.Second))

	p := NewRunHistoryProjection(store, 10)
	require.NoError(t, p.Rebuild(ctx))

	last, ok := p.LastCompleted()
	require.True(t, ok)
	assert.Equal(t, "failed", last.Status)
	assert.Equal(t, "resolve", last.ErrorStage)
	assert.Equal(t, "node list unavailable", last.ErrorMessage)
}

func TestRunHistoryProjection_RunningRunsAreNotHistory(t *testing.T) {
	p := NewRunHistoryProjection(newMemoryStore(t), 10)
	p.Apply(Event{RunID: "run-1", Type: TypeRunStarted, Timestamp: time.Now(), Payload: []byte(`{}`)})

	_, ok := p.Run("run-1")
	assert.True(t, ok)
	assert.Empty(t, p.History())
	_, ok = p.LastCompleted()
	assert.False(t, ok)
}

func TestRunHistoryProjection_PrunesOldest(t *testing.T) {
	p := NewRunHistoryProjection(newMemoryStore(t), 2)
	base := time.Now()
	for i := range 4 {
		id := fmt.Sprintf("run-%d", i)
		at := base.Add(time.Duration(i) * time.Minute)
		p.Apply(Event{RunID: id, Type: TypeRunStarted, Timestamp: at, Payload: []byte(`{}`)})
		p.Apply(Event{RunID: id, Type: TypeRunCompleted, Timestamp: at.Add(time.Second), Payload: []byte(`{"status":"success"}`)})
	}

	history := p.History()
	require.Len(t, history, 2)
	assert.Equal(t, "run-3", history[0].RunID)
	assert.Equal(t, "run-2", history[1].RunID)
	_, ok := p.Run("run-0")
	assert.False(t, ok)
}
