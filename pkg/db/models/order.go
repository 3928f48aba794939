package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is a confirmed purchase. Status and payment status move independently;
// fulfillment status is a cache derived from the items.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string                  `gorm:"column:order_number;not null;uniqueIndex"`
	CheckoutSessionID uuid.UUID               `gorm:"column:checkout_session_id;type:uuid;not null;uniqueIndex"`
	UserID            *uuid.UUID              `gorm:"column:user_id;type:uuid"`
	GuestEmail        *string                 `gorm:"column:guest_email"`
	Status            enums.OrderStatus       `gorm:"column:status;not null"`
	PaymentStatus     enums.PaymentStatus     `gorm:"column:payment_status;not null"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;not null"`
	Currency          enums.Currency          `gorm:"column:currency;not null"`
	SubtotalCents     int64                   `gorm:"column:subtotal_cents;not null"`
	TaxCents          int64                   `gorm:"column:tax_cents;not null"`
	ShippingCents     int64                   `gorm:"column:shipping_cents;not null"`
	DiscountCents     int64                   `gorm:"column:discount_cents;not null"`
	TotalCents        int64                   `gorm:"column:total_cents;not null"`
	ShippingAddress   *types.Address          `gorm:"column:shipping_address;type:jsonb"`
	BillingAddress    *types.Address          `gorm:"column:billing_address;type:jsonb"`
	InventorySyncedAt *time.Time              `gorm:"column:inventory_synced_at"`
	Items             []OrderItem             `gorm:"foreignKey:OrderID"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
