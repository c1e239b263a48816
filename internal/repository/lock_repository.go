package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/osvaldoandrade/formfill/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

type LockRepository interface {
	persistence.LockStorage
}

type lockRedisRepo struct {
	rdb *redis.Client
}

func NewLockRepository(rdb *redis.Client) LockRepository {
	return &lockRedisRepo{rdb: rdb}
}

var extendLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *lockRedisRepo) TryAcquire(ctx context.Context, key string, token string, lease time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, key, token, lease).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX lock: %w", err)
	}
	return ok, nil
}

func (r *lockRedisRepo) Extend(ctx context.Context, key string, token string, lease time.Duration) (bool, error) {
	n, err := extendLockScript.Run(ctx, r.rdb, []string{key}, token, lease.Milliseconds()).Int64()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("redis extend lock: %w", err)
	}
	return n == 1, nil
}

func (r *lockRedisRepo) Release(ctx context.Context, key string, token string) error {
	if err := releaseLockScript.Run(ctx, r.rdb, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release lock: %w", err)
	}
	return nil
}
