package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const applyDeltaSQL = `UPDATE inventory
SET quantity = CASE WHEN quantity + ? < 0 THEN 0 ELSE quantity + ? END,
    updated_at = ?
WHERE product_id = ?
RETURNING quantity`

// Repository persists inventory records and the movement ledger.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindRecord returns nil without error when the product has no record.
func (r *Repository) FindRecord(ctx context.Context, productID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.db.WithContext(ctx).First(&record, "product_id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *Repository) FindRecords(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]models.InventoryRecord, error) {
	out := make(map[uuid.UUID]models.InventoryRecord, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []models.InventoryRecord
	if err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = row
	}
	return out, nil
}

// UpsertRecord creates the record or overwrites its quantity and policy fields.
func (r *Repository) UpsertRecord(ctx context.Context, record *models.InventoryRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"quantity",
				"low_stock_threshold",
				"track_inventory",
				"allow_backorder",
				"updated_at",
			}),
		}).
		Create(record).Error
}

// ApplyDelta adds delta to the stored quantity in one statement, clamping at
// zero. found is false when no record exists.
func (r *Repository) ApplyDelta(ctx context.Context, productID uuid.UUID, delta int) (quantity int, found bool, err error) {
	var rows []struct {
		Quantity int
	}
	err = r.db.WithContext(ctx).
		Raw(applyDeltaSQL, delta, delta, time.Now().UTC(), productID).
		Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].Quantity, true, nil
}

// InsertMovement appends a ledger row. For order-scoped rows a duplicate
// (order, product, kind) is ignored and inserted reports false.
func (r *Repository) InsertMovement(ctx context.Context, movement *models.InventoryMovement) (inserted bool, err error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(movement)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) SetMovementQuantityAfter(ctx context.Context, movementID uuid.UUID, quantity int) error {
	return r.db.WithContext(ctx).
		Model(&models.InventoryMovement{}).
		Where("id = ?", movementID).
		Update("quantity_after", quantity).Error
}

func (r *Repository) FindOrderMovement(ctx context.Context, orderID, productID uuid.UUID, kind enums.InventoryMovementKind) (*models.InventoryMovement, error) {
	var movement models.InventoryMovement
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND product_id = ? AND kind = ?", orderID, productID, kind).
		First(&movement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &movement, nil
}

func (r *Repository) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]models.InventoryMovement, error) {
	var rows []models.InventoryMovement
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// OrderSyncedAt reports when the order's sale movements were applied, or nil.
func (r *Repository) OrderSyncedAt(ctx context.Context, orderID uuid.UUID) (*time.Time, error) {
	var rows []struct {
		InventorySyncedAt *time.Time
	}
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("inventory_synced_at").
		Where("id = ?", orderID).
		Limit(1).
		Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0].InventorySyncedAt, nil
}

func (r *Repository) MarkOrderSynced(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND inventory_synced_at IS NULL", orderID).
		UpdateColumn("inventory_synced_at", at).Error
}
