package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderPlacedEvent is emitted once per order, in the transaction that creates it.
type OrderPlacedEvent struct {
	OrderID           uuid.UUID           `json:"order_id"`
	OrderNumber       string              `json:"order_number"`
	CheckoutSessionID uuid.UUID           `json:"checkout_session_id"`
	UserID            *uuid.UUID          `json:"user_id,omitempty"`
	TotalCents        int64               `json:"total_cents"`
	Currency          enums.Currency      `json:"currency"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status"`
	ItemCount         int                 `json:"item_count"`
}

// OrderStatusChangedEvent describes a move along the order status machine.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Actor       string            `json:"actor"`
}

// PaymentStatusChangedEvent describes a move along the payment status machine.
type PaymentStatusChangedEvent struct {
	OrderID               uuid.UUID           `json:"order_id"`
	OrderNumber           string              `json:"order_number"`
	From                  enums.PaymentStatus `json:"from"`
	To                    enums.PaymentStatus `json:"to"`
	ProviderTransactionID string              `json:"provider_transaction_id,omitempty"`
	Actor                 string              `json:"actor"`
}

// PaymentFailedEvent is emitted when a charge attempt fails or is cancelled.
type PaymentFailedEvent struct {
	CheckoutSessionID     uuid.UUID               `json:"checkout_session_id"`
	OrderID               *uuid.UUID              `json:"order_id,omitempty"`
	ProviderTransactionID string                  `json:"provider_transaction_id"`
	Status                enums.TransactionStatus `json:"status"`
	Reason                string                  `json:"reason,omitempty"`
}

// OrderFulfillmentChangedEvent is emitted when the derived fulfillment status changes.
type OrderFulfillmentChangedEvent struct {
	OrderID uuid.UUID               `json:"order_id"`
	From    enums.FulfillmentStatus `json:"from"`
	To      enums.FulfillmentStatus `json:"to"`
}

// InventoryLowStockEvent is emitted when a decrement crosses the low stock threshold.
type InventoryLowStockEvent struct {
	ProductID         uuid.UUID  `json:"product_id"`
	Quantity          int        `json:"quantity"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	OutOfStock        bool       `json:"out_of_stock"`
	OrderID           *uuid.UUID `json:"order_id,omitempty"`
}
