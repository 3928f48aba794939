package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 20 * time.Millisecond
	movementListLimit  = 50
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wires the ledger. Metrics and Logger may be nil.
type ServiceParams struct {
	Repo        *Repository
	TX          txRunner
	Products    productLoader
	Outbox      outboxPublisher
	Metrics     *metrics.Storefront
	Logger      *logger.Logger
	MaxAttempts int
	BaseDelay   time.Duration
}

// Service owns stock counters and the movement ledger.
type Service struct {
	repo        *Repository
	tx          txRunner
	products    productLoader
	outbox      outboxPublisher
	metrics     *metrics.Storefront
	logg        *logger.Logger
	maxAttempts int
	baseDelay   time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.TX == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := params.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &Service{
		repo:        params.Repo,
		tx:          params.TX,
		products:    params.Products,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}, nil
}

// GetAvailability never fails for unknown products; they read as out of stock.
func (s *Service) GetAvailability(ctx context.Context, productID uuid.UUID) (Availability, error) {
	record, err := s.repo.FindRecord(ctx, productID)
	if err != nil {
		return Availability{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record")
	}
	return AvailabilityOf(productID, record), nil
}

// GetAvailabilities resolves many products with one query. found reports
// which products have a stored record.
func (s *Service) GetAvailabilities(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Availability, map[uuid.UUID]bool, error) {
	records, err := s.repo.FindRecords(ctx, productIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory records")
	}
	out := make(map[uuid.UUID]Availability, len(productIDs))
	found := make(map[uuid.UUID]bool, len(records))
	for _, id := range productIDs {
		if record, ok := records[id]; ok {
			out[id] = AvailabilityOf(id, &record)
			found[id] = true
			continue
		}
		out[id] = AvailabilityOf(id, nil)
	}
	return out, found, nil
}

func (s *Service) GetRecord(ctx context.Context, productID uuid.UUID) (*models.InventoryRecord, error) {
	record, err := s.repo.FindRecord(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory record")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
	}
	return record, nil
}

func (s *Service) ListMovements(ctx context.Context, productID uuid.UUID) ([]models.InventoryMovement, error) {
	rows, err := s.repo.ListMovements(ctx, productID, movementListLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory movements")
	}
	return rows, nil
}

// UpsertRecord creates or replaces a product's stock settings. A quantity
// change is written to the ledger as an adjustment.
func (s *Service) UpsertRecord(ctx context.Context, productID uuid.UUID, settings RecordSettings, actor string) (*models.InventoryRecord, error) {
	if settings.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	if settings.LowStockThreshold < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "low_stock_threshold must not be negative")
	}
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return nil, err
	}

	var saved *models.InventoryRecord
	err := s.withRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindRecord(ctx, productID)
		if err != nil {
			return err
		}
		record := &models.InventoryRecord{
			ProductID:         productID,
			Quantity:          settings.Quantity,
			LowStockThreshold: settings.LowStockThreshold,
			TrackInventory:    settings.TrackInventory,
			AllowBackorder:    settings.AllowBackorder,
			UpdatedAt:         time.Now().UTC(),
		}
		if err := repo.UpsertRecord(ctx, record); err != nil {
			return err
		}
		previous := 0
		if existing != nil {
			previous = existing.Quantity
		}
		if delta := settings.Quantity - previous; delta != 0 {
			after := settings.Quantity
			if _, err := repo.InsertMovement(ctx, &models.InventoryMovement{
				ProductID:     productID,
				Kind:          enums.MovementAdjustment,
				Delta:         delta,
				QuantityAfter: &after,
				Actor:         actor,
			}); err != nil {
				return err
			}
		}
		saved, err = repo.FindRecord(ctx, productID)
		return err
	})
	if err != nil {
		return nil, s.wrapWriteErr(err, "upsert inventory record")
	}
	return saved, nil
}

// Adjust moves stock by delta in a single clamped update and records the
// movement. Serialization failures are retried.
func (s *Service) Adjust(ctx context.Context, productID uuid.UUID, delta int, actor string) (*models.InventoryRecord, error) {
	if delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must not be zero")
	}

	var updated *models.InventoryRecord
	err := s.withRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		before, err := repo.FindRecord(ctx, productID)
		if err != nil {
			return err
		}
		if before == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
		}
		next, found, err := repo.ApplyDelta(ctx, productID, delta)
		if err != nil {
			return err
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
		}
		prev := previousQuantity(before.Quantity, next, delta)
		if _, err := repo.InsertMovement(ctx, &models.InventoryMovement{
			ProductID:     productID,
			Kind:          enums.MovementAdjustment,
			Delta:         next - prev,
			QuantityAfter: &next,
			Actor:         actor,
		}); err != nil {
			return err
		}
		if crossedLowStock(*before, prev, next) {
			if err := s.emitLowStock(ctx, tx, *before, next, nil); err != nil {
				return err
			}
		}
		before.Quantity = next
		updated = before
		return nil
	})
	if err != nil {
		return nil, s.wrapWriteErr(err, "adjust inventory")
	}
	return updated, nil
}

// SyncFromOrder applies the sale movements of a paid order. Lines already
// carrying a sale movement are skipped, so repeated calls are no-ops.
func (s *Service) SyncFromOrder(ctx context.Context, orderID uuid.UUID, items []LineItem) (*SyncReport, error) {
	syncedAt, err := s.repo.OrderSyncedAt(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order sync marker")
	}
	if syncedAt != nil {
		return &SyncReport{OrderID: orderID, AlreadySynced: true, SyncedAt: syncedAt, Items: []LineResult{}}, nil
	}

	lines := mergeLines(items)
	var report *SyncReport
	err = s.withRetry(ctx, func(tx *gorm.DB) error {
		report = &SyncReport{OrderID: orderID, Items: make([]LineResult, 0, len(lines))}
		repo := s.repo.WithTx(tx)
		for _, line := range lines {
			result, err := s.applySale(ctx, tx, repo, orderID, line)
			if err != nil {
				return err
			}
			report.Items = append(report.Items, result)
		}
		now := time.Now().UTC()
		if err := repo.MarkOrderSynced(ctx, orderID, now); err != nil {
			return err
		}
		report.SyncedAt = &now
		return nil
	})
	if err != nil {
		return nil, s.wrapWriteErr(err, "sync inventory from order")
	}

	for _, item := range report.Items {
		s.metrics.InventorySyncLine(string(item.Status))
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{"lines": len(report.Items)})
		s.logg.Info(logCtx, "inventory synced from order")
	}
	return report, nil
}

func (s *Service) applySale(ctx context.Context, tx *gorm.DB, repo *Repository, orderID uuid.UUID, line LineItem) (LineResult, error) {
	result := LineResult{ProductID: line.ProductID}
	record, err := repo.FindRecord(ctx, line.ProductID)
	if err != nil {
		return result, err
	}
	if record == nil {
		result.Status = LineUntracked
		return result, nil
	}
	result.PreviousQuantity = record.Quantity
	result.NewQuantity = record.Quantity
	if !record.TrackInventory {
		result.Status = LineNotTracked
		return result, nil
	}

	movement := &models.InventoryMovement{
		ProductID: line.ProductID,
		OrderID:   &orderID,
		Kind:      enums.MovementSale,
		Delta:     -line.Quantity,
		Actor:     "system",
	}
	inserted, err := repo.InsertMovement(ctx, movement)
	if err != nil {
		return result, err
	}
	if !inserted {
		result.Status = LineAlreadyApplied
		return result, nil
	}

	next, _, err := repo.ApplyDelta(ctx, line.ProductID, -line.Quantity)
	if err != nil {
		return result, err
	}
	if err := repo.SetMovementQuantityAfter(ctx, movement.ID, next); err != nil {
		return result, err
	}
	prev := previousQuantity(record.Quantity, next, -line.Quantity)
	result.PreviousQuantity = prev
	result.NewQuantity = next
	result.Delta = next - prev
	result.Status = LineApplied

	if crossedLowStock(*record, prev, next) {
		if err := s.emitLowStock(ctx, tx, *record, next, &orderID); err != nil {
			return result, err
		}
	}
	return result, nil
}

// RestockOrderTx returns stock for every line that was synced, using tx so the
// caller's status change and the restock commit together.
func (s *Service) RestockOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, items []LineItem, actor string) ([]LineResult, error) {
	repo := s.repo.WithTx(tx)
	lines := mergeLines(items)
	results := make([]LineResult, 0, len(lines))
	for _, line := range lines {
		result := LineResult{ProductID: line.ProductID}
		sale, err := repo.FindOrderMovement(ctx, orderID, line.ProductID, enums.MovementSale)
		if err != nil {
			return nil, err
		}
		if sale == nil {
			result.Status = LineNotSynced
			results = append(results, result)
			continue
		}
		qty := -sale.Delta
		movement := &models.InventoryMovement{
			ProductID: line.ProductID,
			OrderID:   &orderID,
			Kind:      enums.MovementRestock,
			Delta:     qty,
			Actor:     actor,
		}
		inserted, err := repo.InsertMovement(ctx, movement)
		if err != nil {
			return nil, err
		}
		if !inserted {
			result.Status = LineAlreadyApplied
			results = append(results, result)
			continue
		}
		next, found, err := repo.ApplyDelta(ctx, line.ProductID, qty)
		if err != nil {
			return nil, err
		}
		if !found {
			result.Status = LineUntracked
			results = append(results, result)
			continue
		}
		if err := repo.SetMovementQuantityAfter(ctx, movement.ID, next); err != nil {
			return nil, err
		}
		result.PreviousQuantity = next - qty
		result.NewQuantity = next
		result.Delta = qty
		result.Status = LineApplied
		results = append(results, result)
	}
	return results, nil
}

// RestockOrder runs RestockOrderTx in its own transaction.
func (s *Service) RestockOrder(ctx context.Context, orderID uuid.UUID, items []LineItem, actor string) ([]LineResult, error) {
	var results []LineResult
	err := s.withRetry(ctx, func(tx *gorm.DB) error {
		var err error
		results, err = s.RestockOrderTx(ctx, tx, orderID, items, actor)
		return err
	})
	if err != nil {
		return nil, s.wrapWriteErr(err, "restock order")
	}
	return results, nil
}

func (s *Service) emitLowStock(ctx context.Context, tx *gorm.DB, record models.InventoryRecord, quantity int, orderID *uuid.UUID) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryLowStock,
		AggregateType: enums.AggregateInventory,
		AggregateID:   record.ProductID,
		Data: payloads.InventoryLowStockEvent{
			ProductID:         record.ProductID,
			Quantity:          quantity,
			LowStockThreshold: record.LowStockThreshold,
			OutOfStock:        quantity == 0 && !record.AllowBackorder,
			OrderID:           orderID,
		},
	})
}

// withRetry runs fn in a fresh transaction per attempt, retrying only on
// serialization, deadlock and lock errors.
func (s *Service) withRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	backoff := retry.WithMaxRetries(uint64(s.maxAttempts-1), retry.NewExponential(s.baseDelay))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			s.metrics.InventoryAdjustRetry()
		}
		err := s.tx.WithTx(ctx, fn)
		if db.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *Service) wrapWriteErr(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsRetryable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, msg+": retries exhausted")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

// previousQuantity recovers the pre-update value. An unclamped result is exact;
// a clamp to zero falls back to the value read in the same transaction.
func previousQuantity(read, next, delta int) int {
	if next > 0 {
		return next - delta
	}
	return read
}
