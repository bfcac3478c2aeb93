package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockLost is returned by Refresh when another owner holds the lock
var ErrLockLost = errors.New("leader lock lost")

// Locker elects the single process that runs scheduled jobs
type Locker interface {
	// Acquire reports whether this process became the leader
	Acquire(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a lease held under a random token. Only the holder of the
// token can refresh or release it.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = "deutschbot:scheduler:leader"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLock{client: client, key: key, token: uuid.NewString(), ttl: ttl}
}

// Token identifies this owner
func (l *RedisLock) Token() string {
	return l.token
}

func (l *RedisLock) TTL() time.Duration {
	return l.ttl
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire redis lock: %w", err)
	}
	return ok, nil
}

func (l *RedisLock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to refresh redis lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64(); err != nil {
		return fmt.Errorf("failed to release redis lock: %w", err)
	}
	return nil
}
