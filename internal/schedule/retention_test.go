package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	ri "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkinCoach/storage/redis"
)

type fakePurger struct {
	cutoffs []time.Time
	batches []int64
	err     error
}

func (p *fakePurger) DeleteOccurredBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	if p.err != nil {
		return 0, p.err
	}
	if len(p.batches) == 0 {
		return 0, nil
	}
	n := p.batches[0]
	p.batches = p.batches[1:]
	return n, nil
}

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := ri.NewClient(&ri.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redis.Use(client)
	return mr
}

var now = time.Date(2026, 6, 1, 3, 5, 0, 0, time.UTC)

func newTestScheduler(purger EventPurger) *RetentionScheduler {
	s := NewRetentionScheduler(purger, RedisLocker(), 30*24*time.Hour)
	s.now = func() time.Time { return now }
	return s
}

func TestPurgeExpiredEvents_DeletesInBatches(t *testing.T) {
	setupRedis(t)
	purger := &fakePurger{batches: []int64{purgeBatchSize, purgeBatchSize, 12}}

	deleted, err := newTestScheduler(purger).PurgeExpiredEvents(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(2*purgeBatchSize+12), deleted)
	require.Len(t, purger.cutoffs, 3)
	assert.Equal(t, now.Add(-30*24*time.Hour), purger.cutoffs[0])
}

func TestPurgeExpiredEvents_SkipsWhenLocked(t *testing.T) {
	mr := setupRedis(t)
	require.NoError(t, mr.Set(redis.Key(lockPrefixForTest, retentionLockKey), "other-instance"))

	purger := &fakePurger{batches: []int64{5}}
	deleted, err := newTestScheduler(purger).PurgeExpiredEvents(context.Background())

	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Empty(t, purger.cutoffs)
	// 别人的锁不能被释放
	got, err := mr.Get(redis.Key(lockPrefixForTest, retentionLockKey))
	require.NoError(t, err)
	assert.Equal(t, "other-instance", got)
}

func TestPurgeExpiredEvents_ReleasesLock(t *testing.T) {
	mr := setupRedis(t)
	purger := &fakePurger{err: errors.New("db down")}

	_, err := newTestScheduler(purger).PurgeExpiredEvents(context.Background())
	require.Error(t, err)

	assert.False(t, mr.Exists(redis.Key(lockPrefixForTest, retentionLockKey)))
}

func TestNextRun(t *testing.T) {
	before := time.Date(2026, 6, 1, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 6, 1, 3, 5, 0, 0, time.UTC), NextRun(before))

	after := time.Date(2026, 6, 1, 3, 5, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 6, 2, 3, 5, 0, 0, time.UTC), NextRun(after))
}

const lockPrefixForTest = "lock"
