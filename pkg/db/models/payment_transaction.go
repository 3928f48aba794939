package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PaymentTransaction is an append-only ledger row. Rows are never updated; the
// order's payment_status is the projection maintained alongside each insert.
type PaymentTransaction struct {
	ID                    uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID               *uuid.UUID              `gorm:"column:order_id;type:uuid"`
	CheckoutSessionID     *uuid.UUID              `gorm:"column:checkout_session_id;type:uuid"`
	Provider              string                  `gorm:"column:provider;not null"`
	ProviderTransactionID string                  `gorm:"column:provider_transaction_id;not null"`
	Type                  enums.TransactionType   `gorm:"column:type;not null"`
	Status                enums.TransactionStatus `gorm:"column:status;not null"`
	AmountCents           int64                   `gorm:"column:amount_cents;not null"`
	Currency              enums.Currency          `gorm:"column:currency;not null"`
	FailureReason         *string                 `gorm:"column:failure_reason"`
	GatewayResponse       json.RawMessage         `gorm:"column:gateway_response;type:jsonb"`
	ProcessedAt           time.Time               `gorm:"column:processed_at;not null"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (t *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
