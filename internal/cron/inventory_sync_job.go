package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultSyncGrace = 2 * time.Minute
	defaultSyncBatch = 100
)

type unsyncedOrders interface {
	UnsyncedOrders(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error)
	SyncInventory(ctx context.Context, order *models.Order) (*inventory.SyncReport, error)
}

// InventorySyncJobParams configure the inventory reconciliation sweep.
type InventorySyncJobParams struct {
	Logger      *logger.Logger
	Orders      unsyncedOrders
	GracePeriod time.Duration
	BatchSize   int
}

// NewInventorySyncJob builds the job that applies paid orders the placement
// path could not sync.
func NewInventorySyncJob(params InventorySyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = defaultSyncGrace
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSyncBatch
	}
	return &inventorySyncJob{
		logg:   params.Logger,
		orders: params.Orders,
		grace:  grace,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type inventorySyncJob struct {
	logg   *logger.Logger
	orders unsyncedOrders
	grace  time.Duration
	batch  int
	now    func() time.Time
}

func (j *inventorySyncJob) Name() string { return "inventory-sync" }

func (j *inventorySyncJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	pending, err := j.orders.UnsyncedOrders(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list unsynced orders: %w", err)
	}

	var errs error
	synced := 0
	for i := range pending {
		order := &pending[i]
		if _, err := j.orders.SyncInventory(ctx, order); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		synced++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"pending": len(pending),
		"synced":  synced,
		"failed":  len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "inventory sync sweep complete")
	return errs
}
