package lock

import (
	"context"
	"fmt"
	"time"

	random "github.com/mazen160/go-random"
	"github.com/redis/go-redis/v9"
)

// both scripts only touch the key if it still holds our token
var (
	unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)
	refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)
)

// RedisLocker is a Locker shared by every process using the same redis.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLocker(client redis.UniversalClient, prefix string) RedisLocker {
	if prefix == "" {
		prefix = "pricewise:lock:"
	}
	return RedisLocker{client: client, prefix: prefix}
}

func (r RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token, err := random.String(24)
	if err != nil {
		return nil, fmt.Errorf("generate lock token: %w", err)
	}

	redisKey := r.prefix + key
	acquired, err := r.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", redisKey, err)
	}
	if !acquired {
		return nil, ErrLocked
	}
	return redisLease{client: r.client, key: redisKey, token: token}, nil
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l redisLease) Refresh(ctx context.Context, ttl time.Duration) error {
	extended, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh %s: %w", l.key, err)
	}
	if extended == 0 {
		return ErrLost
	}
	return nil
}

func (l redisLease) Unlock(ctx context.Context) error {
	err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
