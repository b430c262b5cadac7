package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/specter/api/schemas"
)

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	require.NoError(t, m.CreateInvestigation(context.Background(), &schemas.Investigation{
		ID: "inv-1", TargetType: schemas.TargetUsername, TargetValue: "alice",
	}))
	return m
}

func TestMemoryLockSemantics(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t)
	now := time.Now().UTC()

	ok, err := m.ClaimLock(ctx, "inv-1", "a", now, 2*time.Minute, 3*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = m.ClaimLock(ctx, "inv-1", "b", now.Add(time.Minute), 2*time.Minute, 3*time.Minute)
	assert.False(t, ok, "held lock must not be claimable")

	ok, _ = m.ClaimLock(ctx, "inv-1", "c", now.Add(150*time.Second), 2*time.Minute, 3*time.Minute)
	assert.True(t, ok, "expired lock is claimable")

	released, _ := m.ReleaseLock(ctx, "inv-1", "a")
	assert.False(t, released, "stale token cannot release")
	released, _ = m.ReleaseLock(ctx, "inv-1", "c")
	assert.True(t, released)
}

func TestMemoryStaleLockIsReclaimed(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t)
	now := time.Now().UTC()

	// A lock with a long TTL is still reclaimed when no tick ran for staleAfter.
	ok, _ := m.ClaimLock(ctx, "inv-1", "a", now, time.Hour, 3*time.Minute)
	require.True(t, ok)
	ok, _ = m.ClaimLock(ctx, "inv-1", "b", now.Add(4*time.Minute), time.Hour, 3*time.Minute)
	assert.True(t, ok)
}

func TestMemoryConcurrentClaims(t *testing.T) {
	m := seedMemory(t)
	now := time.Now().UTC()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if ok, _ := m.ClaimLock(context.Background(), "inv-1", fmt.Sprintf("tok-%d", i), now, time.Minute, 3*time.Minute); ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryPersistAndLoad(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t)
	now := time.Now().UTC()
	ok, _ := m.ClaimLock(ctx, "inv-1", "tok", now, time.Minute, 3*time.Minute)
	require.True(t, ok)

	moved, err := m.MarkProcessing(ctx, "inv-1", schemas.NewEvent("inv-1", schemas.StepPipeline, schemas.EventStarted, 0, "started"))
	require.NoError(t, err)
	assert.True(t, moved)
	moved, _ = m.MarkProcessing(ctx, "inv-1", schemas.ProgressEvent{})
	assert.False(t, moved)

	_, err = m.LoadEnvelope(ctx, "inv-1")
	assert.ErrorIs(t, err, ErrNotFound)

	env := &schemas.Envelope{Target: schemas.Target{Type: schemas.TargetUsername, Value: "alice"}}
	completion := schemas.NewEvent("inv-1", schemas.StepOSINT, schemas.EventCompleted, 14, "done")
	require.NoError(t, m.PersistStep(ctx, "inv-1", "tok", schemas.StepOutput{
		Envelope: env,
		Notes:    []string{"note one", "note two"},
	}, completion))

	env.Target.Value = "mutated"
	loaded, err := m.LoadEnvelope(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.Target.Value, "stored documents are copies")

	evs, _ := m.EventsAfter(ctx, "inv-1", 0, 0)
	require.Len(t, evs, 4)
	assert.Equal(t, []string{"started", "note one", "note two", "done"},
		[]string{evs[0].Message, evs[1].Message, evs[2].Message, evs[3].Message})
	assert.Equal(t, schemas.EventInfo, evs[1].Status)
	for i := 1; i < len(evs); i++ {
		assert.Greater(t, evs[i].ID, evs[i-1].ID)
	}

	err = m.PersistStep(ctx, "inv-1", "other", schemas.StepOutput{}, completion)
	assert.ErrorIs(t, err, ErrLockLost)
}

func TestMemoryProfilesUpsert(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t)
	ok, _ := m.ClaimLock(ctx, "inv-1", "tok", time.Now(), time.Minute, 3*time.Minute)
	require.True(t, ok)

	ev := schemas.NewEvent("inv-1", schemas.StepSocialProfiles, schemas.EventCompleted, 28, "")
	reg := schemas.MonitoringRegistration{Platform: "github", Username: "alice"}
	first := schemas.StepOutput{
		Profiles:   []schemas.SocialProfile{{Platform: "github", Username: "alice", Confidence: 0.7}, {Platform: "reddit", Username: "alice", Confidence: 0.9}},
		Monitoring: []schemas.MonitoringRegistration{reg},
	}
	require.NoError(t, m.PersistStep(ctx, "inv-1", "tok", first, ev))
	before, _ := m.LoadProfiles(ctx, "inv-1")
	require.Len(t, before, 2)
	assert.Equal(t, "reddit", before[0].Platform)

	second := schemas.StepOutput{
		Profiles:   []schemas.SocialProfile{{Platform: "github", Username: "alice", Confidence: 0.95}},
		Monitoring: []schemas.MonitoringRegistration{reg},
	}
	require.NoError(t, m.PersistStep(ctx, "inv-1", "tok", second, ev))
	after, _ := m.LoadProfiles(ctx, "inv-1")
	require.Len(t, after, 2)
	assert.Equal(t, "github", after[0].Platform)
	assert.Equal(t, before[1].ID, after[0].ID, "upsert keeps the row id")
	assert.Len(t, m.Monitoring("inv-1"), 1)
}

func TestMemoryTerminalAndRegenerate(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t)
	ok, _ := m.ClaimLock(ctx, "inv-1", "tok", time.Now(), time.Minute, 3*time.Minute)
	require.True(t, ok)
	require.NoError(t, m.PersistStep(ctx, "inv-1", "tok", schemas.StepOutput{
		AI:         &schemas.AIOutput{Narrative: "x"},
		GeoMarkers: []schemas.GeoMarker{{Label: "Berlin"}},
	}, schemas.NewEvent("inv-1", schemas.StepAI, schemas.EventCompleted, 57, "")))
	require.NoError(t, m.FailInvestigation(ctx, "inv-1", "tok",
		schemas.NewEvent("inv-1", schemas.StepGeo, schemas.EventFailed, 85, "boom")))

	inv, _ := m.GetInvestigation(ctx, "inv-1")
	assert.Equal(t, schemas.StatusFailed, inv.Status)
	assert.Equal(t, schemas.StepGeo, inv.ErrorStep)
	assert.Empty(t, inv.LockToken)

	ok, _ = m.ClaimLock(ctx, "inv-1", "again", time.Now(), time.Minute, 3*time.Minute)
	assert.False(t, ok, "terminal investigations are not claimable")

	require.NoError(t, m.Regenerate(ctx, "inv-1"))
	inv, _ = m.GetInvestigation(ctx, "inv-1")
	assert.Equal(t, schemas.StatusQueued, inv.Status)
	assert.Empty(t, inv.ErrorMessage)
	_, err := m.LoadAIOutput(ctx, "inv-1")
	assert.ErrorIs(t, err, ErrNotFound)
	markers, _ := m.LoadGeoMarkers(ctx, "inv-1")
	assert.Empty(t, markers)
	evs, _ := m.RecentEvents(ctx, "inv-1", 10)
	assert.Empty(t, evs)

	assert.ErrorIs(t, m.Regenerate(ctx, "missing"), ErrNotFound)
}
