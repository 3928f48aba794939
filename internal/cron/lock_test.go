package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryLockStore struct {
	owners map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{owners: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) AcquireLock(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, held := m.owners[name]; held {
		return false, nil
	}
	m.owners[name] = owner
	m.ttls[name] = ttl
	return true, nil
}

func (m *memoryLockStore) ReleaseLock(_ context.Context, name, owner string) error {
	if m.owners[name] == owner {
		delete(m.owners, name)
	}
	return nil
}

func TestRedisLockerLeasesPerJob(t *testing.T) {
	store := newMemoryLockStore()
	locker, err := NewRedisLocker(store, 0)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "inventory-sync")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if store.ttls["cron:inventory-sync"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttls["cron:inventory-sync"])
	}

	if _, ok, _ := locker.Acquire(ctx, "inventory-sync"); ok {
		t.Fatal("expected second acquire to fail while held")
	}
	if _, ok, _ := locker.Acquire(ctx, "outbox-retention"); !ok {
		t.Fatal("expected a different job to lock independently")
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := locker.Acquire(ctx, "inventory-sync"); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestRedisLockerReleaseKeepsForeignOwner(t *testing.T) {
	store := newMemoryLockStore()
	locker, _ := NewRedisLocker(store, time.Minute)
	ctx := context.Background()

	release, ok, err := locker.Acquire(ctx, "job")
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	// lease expired and another worker took over
	store.owners["cron:job"] = "someone-else"

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.owners["cron:job"] != "someone-else" {
		t.Fatal("release must not drop another owner's lock")
	}
}

func TestRedisLockerErrors(t *testing.T) {
	if _, err := NewRedisLocker(nil, time.Minute); err == nil {
		t.Fatal("expected error for nil store")
	}
	store := newMemoryLockStore()
	store.err = errors.New("redis down")
	locker, _ := NewRedisLocker(store, time.Minute)
	if _, _, err := locker.Acquire(context.Background(), "job"); err == nil {
		t.Fatal("expected store error")
	}
	if _, _, err := locker.Acquire(context.Background(), ""); err == nil {
		t.Fatal("expected name error")
	}
}
