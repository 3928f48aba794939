package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 5 * time.Minute

// Locker hands out per-job exclusive leases so one worker runs a given tick.
type Locker interface {
	Acquire(ctx context.Context, job string) (release func(context.Context) error, ok bool, err error)
}

// lockStore is the Redis surface the lock needs.
type lockStore interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

// RedisLocker leases job locks with SETNX + TTL. Release is owner-checked,
// so an expired lease never frees another worker's lock.
type RedisLocker struct {
	store lockStore
	ttl   time.Duration
}

func NewRedisLocker(store lockStore, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{store: store, ttl: ttl}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, job string) (func(context.Context) error, bool, error) {
	if job == "" {
		return nil, false, errors.New("job name is required")
	}
	name := "cron:" + job
	owner := uuid.NewString()
	ok, err := l.store.AcquireLock(ctx, name, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := l.store.ReleaseLock(ctx, name, owner); err != nil {
			return fmt.Errorf("release %s: %w", name, err)
		}
		return nil
	}
	return release, true, nil
}
