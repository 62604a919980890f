package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisLockPrefix = "procengine:lock:"

var (
	// extendScript refreshes the lease only while owner still holds it.
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	// releaseScript deletes the key only while owner still holds it.
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// redisClient is the part of *redis.Client the lock manager uses.
type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// lease is a held lock whose TTL is kept alive in the background.
type lease struct {
	cancel context.CancelFunc
}

// RedisDistributedLockManager holds locks as keys with a TTL. While a lock is
// held its lease is renewed every third of the TTL, so a long pass through
// the engine loop does not let it lapse. If a renewal finds the key owned by
// someone else the lock is dropped and the next TryAcquire reports false.
type RedisDistributedLockManager struct {
	client redisClient
	owner  string
	ttl    time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	held map[int]*lease

	pollInterval  time.Duration
	renewInterval time.Duration
}

func NewRedisDistributedLockManager(client redisClient, ttl time.Duration) *RedisDistributedLockManager {
	renew := ttl / 3
	if renew <= 0 {
		renew = time.Millisecond
	}
	return &RedisDistributedLockManager{
		client:        client,
		owner:         uuid.NewString(),
		ttl:           ttl,
		logger:        slog.Default().With("component", "redis-locks"),
		held:          make(map[int]*lease),
		pollInterval:  200 * time.Millisecond,
		renewInterval: renew,
	}
}

func lockKey(lockID int) string {
	return redisLockPrefix + strconv.Itoa(lockID)
}

func (l *RedisDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.TryAcquire(ctx, lockID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to acquire lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisDistributedLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := lockKey(lockID)
	ok, err := l.client.SetNX(ctx, key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		if ok, err = l.extend(ctx, key); err != nil {
			return false, fmt.Errorf("failed to extend lock: %w", err)
		}
	}
	if !ok {
		l.drop(lockID)
		return false, nil
	}

	if _, held := l.held[lockID]; !held {
		l.keepAlive(lockID)
	}
	return true, nil
}

func (l *RedisDistributedLockManager) extend(ctx context.Context, key string) (bool, error) {
	n, err := extendScript.Run(ctx, l.client, []string{key}, l.owner, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// keepAlive starts renewing lockID's lease. Callers hold l.mu.
func (l *RedisDistributedLockManager) keepAlive(lockID int) {
	ctx, cancel := context.WithCancel(context.Background())
	ls := &lease{cancel: cancel}
	l.held[lockID] = ls
	go l.renew(ctx, lockID, ls)
}

func (l *RedisDistributedLockManager) renew(ctx context.Context, lockID int, ls *lease) {
	ticker := time.NewTicker(l.renewInterval)
	defer ticker.Stop()

	key := lockKey(lockID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		callCtx, cancel := context.WithTimeout(ctx, l.renewInterval)
		ok, err := l.extend(callCtx, key)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Warn("failed to renew lock lease", "lock", lockID, "error", err)
			continue
		}
		if !ok {
			l.logger.Warn("lock lease lost", "lock", lockID)
			l.mu.Lock()
			if l.held[lockID] == ls {
				delete(l.held, lockID)
			}
			l.mu.Unlock()
			ls.cancel()
			return
		}
	}
}

// drop forgets lockID without touching Redis. Callers hold l.mu.
func (l *RedisDistributedLockManager) drop(lockID int) {
	if ls, ok := l.held[lockID]; ok {
		ls.cancel()
		delete(l.held, lockID)
	}
}

func (l *RedisDistributedLockManager) Release(ctx context.Context, lockID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.release(ctx, lockID)
}

func (l *RedisDistributedLockManager) release(ctx context.Context, lockID int) error {
	if _, ok := l.held[lockID]; !ok {
		return nil
	}
	l.drop(lockID)

	if err := releaseScript.Run(ctx, l.client, []string{lockKey(lockID)}, l.owner).Err(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (l *RedisDistributedLockManager) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for id := range l.held {
		errs = append(errs, l.release(context.Background(), id))
	}
	return errors.Join(errs...)
}
