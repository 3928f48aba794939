package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// CheckoutSession is the priced cart snapshot a payment intent is created for.
// It becomes exactly one Order when payment is confirmed.
type CheckoutSession struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	UserID          *uuid.UUID                  `gorm:"column:user_id;type:uuid"`
	GuestEmail      *string                     `gorm:"column:guest_email"`
	Status          enums.CheckoutSessionStatus `gorm:"column:status;not null"`
	CartHash        string                      `gorm:"column:cart_hash;not null"`
	Lines           types.CartLines             `gorm:"column:lines;type:jsonb;not null"`
	Currency        enums.Currency              `gorm:"column:currency;not null"`
	SubtotalCents   int64                       `gorm:"column:subtotal_cents;not null"`
	TaxCents        int64                       `gorm:"column:tax_cents;not null"`
	ShippingCents   int64                       `gorm:"column:shipping_cents;not null"`
	DiscountCents   int64                       `gorm:"column:discount_cents;not null"`
	TotalCents      int64                       `gorm:"column:total_cents;not null"`
	ShippingAddress *types.Address              `gorm:"column:shipping_address;type:jsonb"`
	BillingAddress  *types.Address              `gorm:"column:billing_address;type:jsonb"`
	PaymentIntentID *string                     `gorm:"column:payment_intent_id"`
	OrderID         *uuid.UUID                  `gorm:"column:order_id;type:uuid"`
	LastFailure     *string                     `gorm:"column:last_failure"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *CheckoutSession) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
