package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultExpiryBatch = 500

type sessionExpirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error)
}

type CheckoutExpiryJobParams struct {
	Logger    *logger.Logger
	Checkout  sessionExpirer
	BatchSize int
}

// NewCheckoutExpiryJob builds the job that expires abandoned checkout sessions.
func NewCheckoutExpiryJob(params CheckoutExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &checkoutExpiryJob{
		logg:     params.Logger,
		checkout: params.Checkout,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type checkoutExpiryJob struct {
	logg     *logger.Logger
	checkout sessionExpirer
	batch    int
	now      func() time.Time
}

func (j *checkoutExpiryJob) Name() string { return "checkout-session-expiry" }

func (j *checkoutExpiryJob) Run(ctx context.Context) error {
	expired, err := j.checkout.ExpireStale(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("expire checkout sessions: %w", err)
	}
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "sessions_expired", expired), "checkout sessions expired")
	}
	return nil
}
