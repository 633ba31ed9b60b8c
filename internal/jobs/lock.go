package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 2 * time.Hour

// Lock coordinates exclusive batch runs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory returns the lock guarding key.
type LockFactory func(key string) (Lock, error)

type redisStore interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock holds a redis key for the duration of a batch. The key carries a
// per-acquire owner token and expires after ttl if the holder dies.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// RedisLocks hands out one RedisLock per key.
func RedisLocks(client redisStore, ttl time.Duration) LockFactory {
	return func(key string) (Lock, error) {
		return NewRedisLock(client, key, ttl)
	}
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.AcquireLock(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release is a no-op when the lock expired or was taken over by another owner.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.client.ReleaseLock(ctx, l.key, owner); err != nil {
		return err
	}
	return nil
}
