package schedule

// 审计清理：每天删除超过保留期的引导事件，多实例部署时用 Redis 锁保证只有一个实例在跑

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"SkinCoach/internal/cache"
	"SkinCoach/pkg/logger"
)

const (
	retentionLockKey = "schedule:audit_retention"
	retentionLockTTL = 10 * time.Minute
	purgeBatchSize   = 1000
	// 单次运行最多删这么多批，剩下的留给下一次
	maxPurgeBatches = 100
)

// EventPurger 审计表的清理能力
type EventPurger interface {
	DeleteOccurredBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// Locker 跨实例互斥，默认走 cache.TryLock
type Locker interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

type redisLocker struct{}

func (redisLocker) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return cache.TryLock(ctx, key, token, ttl)
}

func (redisLocker) Unlock(ctx context.Context, key, token string) error {
	return cache.Unlock(ctx, key, token)
}

// RedisLocker 基于 SETNX 的锁
func RedisLocker() Locker {
	return redisLocker{}
}

type RetentionScheduler struct {
	purger    EventPurger
	locker    Locker
	now       func() time.Time
	logger    *zap.Logger
	retention time.Duration

	mu      sync.Mutex
	running bool
}

func NewRetentionScheduler(purger EventPurger, locker Locker, retention time.Duration) *RetentionScheduler {
	return &RetentionScheduler{
		purger:    purger,
		locker:    locker,
		retention: retention,
		now:       time.Now,
		logger:    logger.Logger,
	}
}

// PurgeExpiredEvents 执行一次清理，返回删除行数；其他实例持锁时直接跳过
func (s *RetentionScheduler) PurgeExpiredEvents(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Retention job already running, skipping")
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	token := uuid.NewString()
	acquired, err := s.locker.TryLock(ctx, retentionLockKey, token, retentionLockTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire retention lock: %w", err)
	}
	if !acquired {
		s.logger.Info("Retention job is running on another instance, skipping")
		return 0, nil
	}
	defer func() {
		if err := s.locker.Unlock(context.Background(), retentionLockKey, token); err != nil {
			s.logger.Warn("Failed to release retention lock", zap.Error(err))
		}
	}()

	startTime := s.now()
	cutoff := startTime.Add(-s.retention)

	var total int64
	for i := 0; i < maxPurgeBatches; i++ {
		n, err := s.purger.DeleteOccurredBefore(ctx, cutoff, purgeBatchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n < purgeBatchSize {
			break
		}
	}

	s.logger.Info("Audit retention job completed",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", total),
		zap.Duration("duration", s.now().Sub(startTime)),
	)
	return total, nil
}

// NextRun 下一个本地时间 03:05
func NextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), 3, 5, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
