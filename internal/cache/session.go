package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	ri "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"SkinCoach/internal/wizard"
	"SkinCoach/pkg/logger"
	"SkinCoach/storage/redis"
)

const (
	sessionPrefix  = "wizard:session"
	sessionLockTTL = 30 * time.Second // 未指定时的持锁时间
)

// SessionStore 向导会话的 Redis 存储，值为 JSON，每次保存刷新 TTL
type SessionStore struct {
	breaker *CircuitBreaker
	ttl     time.Duration
	lockTTL time.Duration
}

// NewSessionStore lockTTL 应覆盖一次提交的最长耗时，见 config.SessionLockTTL
func NewSessionStore(ttl, lockTTL time.Duration) *SessionStore {
	if lockTTL <= 0 {
		lockTTL = sessionLockTTL
	}
	return &SessionStore{
		breaker: SessionBreaker,
		ttl:     ttl,
		lockTTL: lockTTL,
	}
}

func sessionKey(id string) string {
	return redis.Key(sessionPrefix, id)
}

func (s *SessionStore) Get(ctx context.Context, id string) (*wizard.Session, error) {
	var data []byte
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		data, err = redis.Client().Get(ctx, sessionKey(id)).Bytes()
		if errors.Is(err, ri.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get wizard session: %w", err)
	}
	if data == nil {
		return nil, wizard.ErrSessionNotFound
	}

	var sess wizard.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wizard session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *wizard.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal wizard session: %w", err)
	}

	return s.breaker.Call(ctx, func(ctx context.Context) error {
		return redis.Client().Set(ctx, sessionKey(sess.ID), data, s.ttl).Err()
	})
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.breaker.Call(ctx, func(ctx context.Context) error {
		return redis.Client().Del(ctx, sessionKey(id)).Err()
	})
}

// Lock 同一会话同一时刻只允许一次提交，已被持有时返回 ErrSessionBusy
func (s *SessionStore) Lock(ctx context.Context, id string) (func(), error) {
	key := "wizard:" + id
	token := uuid.NewString()

	ok, err := TryLock(ctx, key, token, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wizard session: %w", err)
	}
	if !ok {
		return nil, wizard.ErrSessionBusy
	}

	return func() {
		// 请求上下文可能已取消，解锁单独给超时
		unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := Unlock(unlockCtx, key, token); err != nil {
			logger.Logger.Warn("Failed to unlock wizard session",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
	}, nil
}
