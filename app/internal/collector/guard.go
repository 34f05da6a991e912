package collector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress is returned when another collection run holds the guard
var ErrRunInProgress = errors.New("collection run already in progress")

// Guard admits at most one collection run at a time. TryAcquire never
// blocks waiting for the holder; it either returns a release func or an error.
type Guard interface {
	TryAcquire(ctx context.Context) (release func(), err error)
}

// LocalGuard serialises runs inside one process
type LocalGuard struct {
	running atomic.Bool
}

func (g *LocalGuard) TryAcquire(context.Context) (func(), error) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	return func() { g.running.Store(false) }, nil
}

// unlockScript deletes the lock only if we still own it
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard serialises runs across instances sharing one Redis.
// The lock expires after TTL so a crashed holder cannot wedge collection.
type RedisGuard struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisGuard returns a guard on key. ttl should exceed the longest
// expected run.
func NewRedisGuard(client redis.UniversalClient, key string, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisGuard{client: client, key: key, ttl: ttl}
}

func (g *RedisGuard) TryAcquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() {
		// the run context may already be cancelled
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(rctx, g.client, []string{g.key}, token).Err()
	}, nil
}
