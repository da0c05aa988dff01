package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	ri "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkinCoach/internal/wizard"
	"SkinCoach/storage/redis"
)

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr := miniredis.RunT(t)
	client := ri.NewClient(&ri.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	redis.Use(client)
	return mr
}

func newTestStore(ttl time.Duration) *SessionStore {
	s := NewSessionStore(ttl, 0)
	s.breaker = NewCircuitBreaker("test", 3, time.Minute)
	return s
}

func TestSessionStore_RoundTrip(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()
	store := newTestStore(time.Hour)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess := wizard.NewSession("sess-1", true, wizard.EntryParams{}, now)
	sess.Form.FirstName = "Ada"
	sess.ProfileID = "profile-1"

	require.NoError(t, store.Save(ctx, sess))
	assert.True(t, mr.Exists("skc:wizard:session:sess-1"))
	assert.Equal(t, time.Hour, mr.TTL("skc:wizard:session:sess-1"))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Form.FirstName)
	assert.Equal(t, "profile-1", got.ProfileID)
	assert.Equal(t, sess.StepIndex, got.StepIndex)

	require.NoError(t, store.Delete(ctx, "sess-1"))
	_, err = store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, wizard.ErrSessionNotFound)
}

func TestSessionStore_Expires(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()
	store := newTestStore(time.Minute)

	sess := wizard.NewSession("sess-2", false, wizard.EntryParams{}, time.Now())
	require.NoError(t, store.Save(ctx, sess))

	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "sess-2")
	assert.ErrorIs(t, err, wizard.ErrSessionNotFound)
}

func TestSessionStore_Lock(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()
	store := newTestStore(time.Hour)

	unlock, err := store.Lock(ctx, "sess-3")
	require.NoError(t, err)

	_, err = store.Lock(ctx, "sess-3")
	assert.ErrorIs(t, err, wizard.ErrSessionBusy)

	// 其他会话不受影响
	other, err := store.Lock(ctx, "sess-4")
	require.NoError(t, err)
	other()

	unlock()
	unlock2, err := store.Lock(ctx, "sess-3")
	require.NoError(t, err)

	t.Run("expired lock is not released by its old holder", func(t *testing.T) {
		mr.FastForward(sessionLockTTL + time.Second)

		unlock3, err := store.Lock(ctx, "sess-3")
		require.NoError(t, err)

		unlock2()
		_, err = store.Lock(ctx, "sess-3")
		assert.ErrorIs(t, err, wizard.ErrSessionBusy)

		unlock3()
	})
}

func TestSessionStore_LockTTL(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	store := NewSessionStore(time.Hour, 70*time.Second)
	store.breaker = NewCircuitBreaker("test", 3, time.Minute)

	unlock, err := store.Lock(ctx, "sess-5")
	require.NoError(t, err)
	defer unlock()

	assert.Equal(t, 70*time.Second, mr.TTL(redis.Key(lockPrefix, "wizard:sess-5")))

	// 未超过锁的 TTL 时第二次提交仍被拒绝
	mr.FastForward(60 * time.Second)
	_, err = store.Lock(ctx, "sess-5")
	assert.ErrorIs(t, err, wizard.ErrSessionBusy)
}

func TestSessionStore_BreakerOpensOnRedisFailure(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()
	store := newTestStore(time.Hour)

	// 先建立连接，避免握手阶段也拿到注入的错误
	require.NoError(t, redis.Client().Ping(ctx).Err())

	mr.SetError("ERR injected failure")
	for i := 0; i < 3; i++ {
		_, err := store.Get(ctx, "sess-5")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBreakerOpen)
	}

	mr.SetError("")
	_, err := store.Get(ctx, "sess-5")
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, StateOpen, store.breaker.GetState())
}

func TestCircuitBreaker(t *testing.T) {
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("test", 2, 10*time.Second)
	cb.now = func() time.Time { return clock }

	ctx := context.Background()
	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }

	assert.ErrorIs(t, cb.Call(ctx, fail), boom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Call(ctx, fail), boom)
	assert.Equal(t, StateOpen, cb.GetState())

	assert.ErrorIs(t, cb.Call(ctx, ok), ErrBreakerOpen)

	t.Run("half-open failure reopens", func(t *testing.T) {
		clock = clock.Add(11 * time.Second)
		assert.ErrorIs(t, cb.Call(ctx, fail), boom)
		assert.Equal(t, StateOpen, cb.GetState())
	})

	t.Run("half-open success closes", func(t *testing.T) {
		clock = clock.Add(11 * time.Second)
		assert.NoError(t, cb.Call(ctx, ok))
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("canceled context is not a failure", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_ = cb.Call(ctx, func(context.Context) error { return context.Canceled })
		}
		assert.Equal(t, StateClosed, cb.GetState())
	})
}

func TestBookingMarks(t *testing.T) {
	setupRedis(t)
	ctx := context.Background()
	marks := NewBookingMarks()

	const invitee = "https://api.calendly.com/scheduled_events/EV1/invitees/IN1"

	first, err := marks.TryMarkBooking(ctx, "profile-1", invitee)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := marks.TryMarkBooking(ctx, "profile-1", invitee)
	require.NoError(t, err)
	assert.False(t, again)

	otherProfile, err := marks.TryMarkBooking(ctx, "profile-2", invitee)
	require.NoError(t, err)
	assert.True(t, otherProfile)

	require.NoError(t, marks.UnmarkBooking(ctx, "profile-1", invitee))
	retried, err := marks.TryMarkBooking(ctx, "profile-1", invitee)
	require.NoError(t, err)
	assert.True(t, retried)
}

func TestMessageMarks(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	first, err := TryMarkMessageProcessing(ctx, "msg-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	dup, err := TryMarkMessageProcessing(ctx, "msg-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, dup)

	require.NoError(t, MarkMessageProcessed(ctx, "msg-1", 48*time.Hour))
	v, err := mr.Get("skc:msg:processed:msg-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", v)
	assert.Equal(t, 48*time.Hour, mr.TTL("skc:msg:processed:msg-1"))

	require.NoError(t, UnmarkMessageProcessing(ctx, "msg-1"))
	retried, err := TryMarkMessageProcessing(ctx, "msg-1", 0)
	require.NoError(t, err)
	assert.True(t, retried)
	assert.Equal(t, processedTTL, mr.TTL("skc:msg:processed:msg-1"))
}
