package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// guardStore is the Redis surface the guard needs.
type guardStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	WebhookEventKey(provider, eventID string) string
}

// IdempotencyGuard remembers processed provider event ids so redeliveries
// short-circuit before touching the database. Ids are marked only once an
// event has been applied; concurrent first deliveries fall through to the
// payment ledger's unique key.
type IdempotencyGuard struct {
	store    guardStore
	ttl      time.Duration
	provider string
}

func NewIdempotencyGuard(store guardStore, ttl time.Duration, provider string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	return &IdempotencyGuard{
		store:    store,
		ttl:      ttl,
		provider: provider,
	}, nil
}

// Seen reports whether eventID was already applied.
func (g *IdempotencyGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	_, err := g.store.Get(ctx, g.store.WebhookEventKey(g.provider, eventID))
	switch {
	case errors.Is(err, goredis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("get webhook event key: %w", err)
	}
	return true, nil
}

// Mark records eventID as applied.
func (g *IdempotencyGuard) Mark(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if err := g.store.Set(ctx, g.store.WebhookEventKey(g.provider, eventID), "1", g.ttl); err != nil {
		return fmt.Errorf("set webhook event key: %w", err)
	}
	return nil
}
