package accumulator

import (
	"context"
	"sync"
	"time"

	"service-intake/internal/common/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards the state of a user across worker replicas. The returned
// func releases the lock.
type Locker interface {
	Acquire(ctx context.Context, userID string) (func(), error)
}

const lockPrefix = "state-lock:"

func LockKey(userID string) string { return lockPrefix + userID }

const (
	releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) end return 0`
	extendScript  = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) end return 0`
)

// RedisLocker is a SET NX lock with an owner token. While held, the lease is
// extended every ttl/3 so a turn that waits out long retry delays keeps it.
// A crashed holder loses the lock after ttl.
type RedisLocker struct {
	rdb  redis.Cmdable
	ttl  time.Duration
	poll time.Duration
}

func NewRedisLocker(rdb redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, poll: 50 * time.Millisecond}
}

func (l *RedisLocker) Acquire(ctx context.Context, userID string) (func(), error) {
	key := LockKey(userID)
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.NewTimeoutError("state lock", ctx.Err())
			}
			return nil, errors.NewDatabaseError("acquire state lock", err)
		}
		if ok {
			break
		}

		t := time.NewTimer(l.poll)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, errors.NewTimeoutError("state lock", ctx.Err())
		}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(key, token, done)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			l.rdb.Eval(rctx, releaseScript, []string{key}, token)
		})
	}, nil
}

func (l *RedisLocker) keepAlive(key, token string, done <-chan struct{}) {
	tick := time.NewTicker(l.ttl / 3)
	defer tick.Stop()
	for {
		select {
		case <-done:
			return
		case <-tick.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			l.rdb.Eval(ctx, extendScript, []string{key}, token, l.ttl.Milliseconds())
			cancel()
		}
	}
}
