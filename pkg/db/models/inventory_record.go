package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRecord holds the stock counter and availability policy for one product.
type InventoryRecord struct {
	ProductID         uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Quantity          int       `gorm:"column:quantity;not null"`
	LowStockThreshold int       `gorm:"column:low_stock_threshold;not null"`
	TrackInventory    bool      `gorm:"column:track_inventory;not null"`
	AllowBackorder    bool      `gorm:"column:allow_backorder;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryRecord) TableName() string { return "inventory" }
