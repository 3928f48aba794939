package redis

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for i := int64(1); i <= 3; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "checkout:203.0.113.7", 2, time.Hour)
		if err != nil {
			t.Fatalf("hit %d: unexpected error: %v", i, err)
		}
		if count != i {
			t.Fatalf("hit %d: expected count %d, got %d", i, i, count)
		}
		if want := i <= 2; allowed != want {
			t.Fatalf("hit %d: allowed=%v want %v", i, allowed, want)
		}
	}
	if len(mock.ttls) != 1 {
		t.Fatalf("expected expiry set once per window, got %d", len(mock.ttls))
	}
	for k, ttl := range mock.ttls {
		if !strings.HasPrefix(k, "sf:rate_limit:checkout:203.0.113.7:") {
			t.Fatalf("unexpected window key %s", k)
		}
		if ttl != time.Hour.Milliseconds() {
			t.Fatalf("unexpected ttl %d", ttl)
		}
	}
}

func TestFixedWindowAllowRejectsZeroWindow(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, _, err := client.FixedWindowAllow(context.Background(), "s", 1, 0); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestLockLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	ok, err := client.AcquireLock(ctx, "inventory-sync", "worker-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = client.AcquireLock(ctx, "inventory-sync", "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second owner to be refused")
	}

	if err := client.ReleaseLock(ctx, "inventory-sync", "worker-b"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := client.Get(ctx, client.LockKey("inventory-sync")); err != nil {
		t.Fatalf("foreign release must keep the lock, got %v", err)
	}

	if err := client.ReleaseLock(ctx, "inventory-sync", "worker-a"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, err := client.Get(ctx, client.LockKey("inventory-sync")); err != redis.Nil {
		t.Fatalf("expected lock removed, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	cases := []struct {
		got, want string
	}{
		{client.IdempotencyKey("scope", "id"), "sf:idempotency:scope:id"},
		{client.RateLimitKey("scope"), "sf:rate_limit:scope"},
		{client.WebhookEventKey("stripe", "evt_1"), "sf:webhook:stripe:evt_1"},
		{client.LockKey("outbox-retention"), "sf:lock:outbox-retention"},
		{client.WebhookEventKey("", " evt_1 "), "sf:webhook:evt_1"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("got %s, want %s", tc.got, tc.want)
		}
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, _, err := client.FixedWindowAllow(context.Background(), "s", 1, time.Second); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op: %v", err)
	}
}

func TestDelWithoutKeysIsNoop(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if err := client.Del(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", DB: 5, PoolSize: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 {
		t.Fatalf("url db should win and pool should be filled, got db=%d pool=%d", opts.DB, opts.PoolSize)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 3 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected address options %+v", opts)
	}
}

// mockCmdable keeps string keys and counters in memory and evaluates the
// package scripts by their SHA.
type mockCmdable struct {
	data     map[string]string
	counters map[string]int64
	ttls     map[string]int64
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     make(map[string]string),
		counters: make(map[string]int64),
		ttls:     make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	switch sha {
	case incrWindowScript.Hash():
		k := keys[0]
		m.counters[k]++
		if m.counters[k] == 1 {
			m.ttls[k] = args[0].(int64)
		}
		return redis.NewCmdResult(m.counters[k], nil)
	case releaseLockScript.Hash():
		if m.data[keys[0]] == fmt.Sprint(args[0]) {
			delete(m.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown script %s", sha))
}

func (m *mockCmdable) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, fmt.Errorf("mock only evaluates by sha"))
}

func (m *mockCmdable) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCmdable) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}
