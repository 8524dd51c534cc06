package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
	"github.com/zhouzirui/car-advisor/backend/internal/model/chat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStoreGetSession(t *testing.T) {
	store := NewStore(time.Hour, zap.NewNop())
	ctx := context.Background()

	sess := store.Create(ctx)
	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, 1, store.Len())
}

func TestStoreGetSessionNotFound(t *testing.T) {
	store := NewStore(time.Hour, zap.NewNop())

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestStoreGetOrCreate(t *testing.T) {
	store := NewStore(time.Hour, zap.NewNop())
	ctx := context.Background()

	first, created := store.GetOrCreate(ctx, "")
	assert.True(t, created)

	again, created := store.GetOrCreate(ctx, first.ID)
	assert.False(t, created)
	assert.Same(t, first, again)

	_, created = store.GetOrCreate(ctx, "stale-id")
	assert.True(t, created)
	assert.Equal(t, 2, store.Len())
}

func TestStoreSweepExpiresIdleSessions(t *testing.T) {
	store := NewStore(time.Minute, zap.NewNop())
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	idle := store.Create(ctx)
	events, cancel := idle.Subscribe()
	defer cancel()

	now = now.Add(30 * time.Second)
	active := store.Create(ctx)

	assert.Equal(t, 0, store.Sweep(now))
	assert.Equal(t, 1, store.Sweep(now.Add(45*time.Second)))

	_, err := store.Get(ctx, idle.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	_, err = store.Get(ctx, active.ID)
	assert.NoError(t, err)

	_, open := <-events
	assert.False(t, open, "subscribers of expired sessions are closed")
}

func TestStoreRunStopsOnCancel(t *testing.T) {
	store := NewStore(10*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- store.Run(ctx) }()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestPassMutations(t *testing.T) {
	store := NewStore(time.Hour, zap.NewNop())
	ctx := context.Background()
	sess := store.Create(ctx)

	events, cancel := sess.Subscribe()
	defer cancel()

	pass, err := sess.BeginPass(ctx)
	require.NoError(t, err)

	pass.MarkProactiveFired()
	rec := car.DefaultRecord()
	pass.ReplacePrediction(rec, car.NewPrediction(12000))
	turn := pass.AppendTurn(chat.RoleUser, "hello", false)
	pass.End()
	pass.End()

	state := sess.Snapshot()
	require.Len(t, state.Transcript, 1)
	assert.Equal(t, turn.ID, state.Transcript[0].ID)
	assert.False(t, state.ProactiveFired)
	assert.Equal(t, chat.StagePending, state.ProactiveStage())

	first := <-events
	assert.Equal(t, chat.EventPrediction, first.Type)
	assert.Equal(t, sess.ID, first.SessionID)
	second := <-events
	assert.Equal(t, chat.EventTurn, second.Type)
	assert.Equal(t, "hello", second.Turn.Content)
}

func TestBeginPassIsExclusive(t *testing.T) {
	store := NewStore(time.Hour, zap.NewNop())
	sess := store.Create(context.Background())

	pass, err := sess.BeginPass(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = sess.BeginPass(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pass.End()
	next, err := sess.BeginPass(context.Background())
	require.NoError(t, err)
	next.End()
}

func TestSubscribeCancelIsIdempotent(t *testing.T) {
	store := NewStore(time.Hour, zap.NewNop())
	sess := store.Create(context.Background())

	_, cancel := sess.Subscribe()
	cancel()
	cancel()
	store.Delete(sess.ID)
	assert.Equal(t, 0, store.Len())

	ch, cancel := sess.Subscribe()
	defer cancel()
	_, open := <-ch
	assert.False(t, open)
}
