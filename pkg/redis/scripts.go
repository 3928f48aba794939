package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindowScript bumps a window counter and sets its expiry on the first
// hit so the counter and TTL can never be split by a failure.
var incrWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)

// releaseLockScript deletes the lock only while the caller still owns it.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (c *Client) run(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	if c.store == nil {
		return nil, errNotInitialized
	}
	return script.Run(ctx, c.store, keys, args...).Result()
}

// FixedWindowAllow counts a hit against scope in the current window and
// reports whether the count is still within limit.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if window <= 0 {
		return false, 0, errors.New("rate limit window must be positive")
	}
	start := time.Now().UnixNano() / int64(window)
	k := c.RateLimitKey(scope) + ":" + strconv.FormatInt(start, 10)

	res, err := c.run(ctx, incrWindowScript, []string{k}, window.Milliseconds())
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	count, ok := res.(int64)
	if !ok {
		return false, 0, fmt.Errorf("rate limit %s: unexpected reply %T", scope, res)
	}
	return count <= limit, count, nil
}

// AcquireLock takes the named lock for owner when nobody holds it.
func (c *Client) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, c.LockKey(name), owner, ttl)
}

// ReleaseLock drops the named lock if owner still holds it.
func (c *Client) ReleaseLock(ctx context.Context, name, owner string) error {
	_, err := c.run(ctx, releaseLockScript, []string{c.LockKey(name)}, owner)
	return err
}
