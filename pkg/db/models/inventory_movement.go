package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// InventoryMovement is an append-only stock ledger row. Sale and restock rows are
// unique per (order, product, kind) and double as the idempotency marker for syncs.
type InventoryMovement struct {
	ID            uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID                   `gorm:"column:product_id;type:uuid;not null"`
	OrderID       *uuid.UUID                  `gorm:"column:order_id;type:uuid"`
	Kind          enums.InventoryMovementKind `gorm:"column:kind;not null"`
	Delta         int                         `gorm:"column:delta;not null"`
	QuantityAfter *int                        `gorm:"column:quantity_after"`
	Actor         string                      `gorm:"column:actor;not null"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (m *InventoryMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
