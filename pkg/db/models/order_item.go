package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderItem snapshots the product at purchase time; only fulfillment mutates it.
type OrderItem struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	Position          int                     `gorm:"column:position;not null"`
	ProductID         uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	SKU               string                  `gorm:"column:sku;not null"`
	Name              string                  `gorm:"column:name;not null"`
	UnitPriceCents    int64                   `gorm:"column:unit_price_cents;not null"`
	Quantity          int                     `gorm:"column:quantity;not null"`
	TotalPriceCents   int64                   `gorm:"column:total_price_cents;not null"`
	QuantityFulfilled int                     `gorm:"column:quantity_fulfilled;not null"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;not null"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// Remaining returns the quantity still to fulfill.
func (i OrderItem) Remaining() int {
	if i.QuantityFulfilled >= i.Quantity {
		return 0
	}
	return i.Quantity - i.QuantityFulfilled
}
