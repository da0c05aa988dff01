package cache

import (
	"context"
	"time"

	ri "github.com/redis/go-redis/v9"

	"SkinCoach/storage/redis"
)

// 基于 SetNX 的分布式锁，同一向导会话的提交在多实例间串行
const (
	lockPrefix = "lock"
)

// unlockScript 只删除自己持有的锁，避免锁过期后误删别人的
var unlockScript = ri.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	fullkey := redis.Key(lockPrefix, key)

	result, err := redis.Client().SetNX(ctx, fullkey, token, ttl).Result()
	if err != nil {
		return false, err
	}

	return result, nil
}

func Unlock(ctx context.Context, key, token string) error {
	fullkey := redis.Key(lockPrefix, key)

	return unlockScript.Run(ctx, redis.Client(), []string{fullkey}, token).Err()
}
