package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLockNotHeld = errors.New("lock not held")

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock SET NX 获取分布式锁；未启用 Redis 时直接返回成功，由数据库租约兜底
func AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if !Enabled() {
		return true, nil
	}
	return redisClient.SetNX(ctx, buildKey("lock:"+key), owner, ttl).Result()
}

// ReleaseLock 仅释放自己持有的锁
func ReleaseLock(ctx context.Context, key, owner string) error {
	if !Enabled() {
		return nil
	}
	n, err := releaseLockScript.Run(ctx, redisClient, []string{buildKey("lock:" + key)}, owner).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
