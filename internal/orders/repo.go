package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const addFulfilledSQL = `UPDATE order_items
SET quantity_fulfilled = CASE WHEN quantity_fulfilled + ? > quantity THEN quantity ELSE quantity_fulfilled + ? END,
    updated_at = ?
WHERE id = ? AND order_id = ?
RETURNING quantity_fulfilled`

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order and its items; associations are written
// explicitly so item ids and positions are kept as given.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error; err != nil {
		return err
	}
	if len(order.Items) == 0 {
		return nil
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(&order.Items).Error
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrderForUpdate row-locks the order on postgres. sqlite has no row locks
// and serializes through its single writer.
func (r *repository) FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	var items []models.OrderItem
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Order("position ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *repository) FindOrderBySession(ctx context.Context, sessionID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("checkout_session_id = ?", sessionID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListOrders returns one buffered page ordered newest first. A nil userID lists every order.
func (r *repository) ListOrders(ctx context.Context, userID *uuid.UUID, params pagination.Params) ([]models.Order, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	var rows []models.Order
	err = query.Scopes(pagination.Keyset(cursor, params.Limit)).Find(&rows).Error
	return rows, err
}

// FindUnsyncedPaidOrders lists paid orders whose inventory sync has not run,
// oldest first, created before cutoff.
func (r *repository) FindUnsyncedPaidOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("inventory_synced_at IS NULL").
		Where("payment_status = ?", enums.PaymentStatusPaid).
		Where("status <> ?", enums.OrderStatusCancelled).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// AddItemFulfilled raises quantity_fulfilled by qty, clamped to the ordered quantity.
func (r *repository) AddItemFulfilled(ctx context.Context, orderID, itemID uuid.UUID, qty int) (int, bool, error) {
	var rows []struct {
		QuantityFulfilled int
	}
	err := r.db.WithContext(ctx).
		Raw(addFulfilledSQL, qty, qty, time.Now().UTC(), itemID, orderID).
		Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].QuantityFulfilled, true, nil
}

func (r *repository) FulfillAllItems(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"quantity_fulfilled": gorm.Expr("quantity"),
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *repository) UpdateItemStatus(ctx context.Context, itemID uuid.UUID, status enums.FulfillmentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{"fulfillment_status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) AppendHistory(ctx context.Context, entries ...models.OrderStatusHistory) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *repository) ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	var rows []models.OrderStatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// InsertTransaction appends a ledger row. A row with the same provider,
// provider transaction id, type and status is a redelivery and is skipped.
func (r *repository) InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(txn)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("processed_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindSession(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *repository) FindSessionByIntent(ctx context.Context, intentID string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.WithContext(ctx).First(&session, "payment_intent_id = ?", intentID).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// ClaimSession completes an open or expired session for orderID. A payment
// that lands after expiry still becomes an order. It reports false when
// another caller already completed it.
func (r *repository) ClaimSession(ctx context.Context, sessionID, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status IN ?", sessionID, []enums.CheckoutSessionStatus{enums.CheckoutSessionOpen, enums.CheckoutSessionExpired}).
		Updates(map[string]any{
			"status":     enums.CheckoutSessionCompleted,
			"order_id":   orderID,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RecordSessionFailure(ctx context.Context, sessionID uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{"last_failure": reason, "updated_at": time.Now().UTC()}).Error
}
