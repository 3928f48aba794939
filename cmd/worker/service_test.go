package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type runFunc func(ctx context.Context) error

func (f runFunc) Run(ctx context.Context) error { return f(ctx) }

func okPing(context.Context) error { return nil }

func newTestService(t *testing.T, redis pinger, consumer runner) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:       pingFunc(okPing),
		Redis:    redis,
		PubSub:   pingFunc(okPing),
		Consumer: consumer,
	})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	return svc
}

func TestRunFailsWhenDependencyDown(t *testing.T) {
	started := false
	svc := newTestService(t,
		pingFunc(func(context.Context) error { return errors.New("redis down") }),
		runFunc(func(context.Context) error { started = true; return nil }),
	)
	if err := svc.Run(context.Background()); err == nil {
		t.Fatalf("expected readiness error")
	}
	if started {
		t.Fatalf("consumer should not start when a dependency is down")
	}
}

func TestRunReturnsConsumerError(t *testing.T) {
	boom := errors.New("receive failed")
	svc := newTestService(t, pingFunc(okPing), runFunc(func(context.Context) error { return boom }))
	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := newTestService(t, pingFunc(okPing), runFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewServiceRequiresConsumer(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:     pingFunc(okPing),
		Redis:  pingFunc(okPing),
		PubSub: pingFunc(okPing),
	})
	if err == nil {
		t.Fatalf("expected error without consumer")
	}
}
