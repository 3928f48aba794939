package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PaymentReference identifies the confirmed provider payment an order is placed for.
type PaymentReference struct {
	Provider        string
	TransactionID   string
	AmountCents     int64
	Currency        enums.Currency
	GatewayResponse json.RawMessage
}

// PlaceOrderInput turns a checkout session into an order.
type PlaceOrderInput struct {
	SessionID uuid.UUID
	Payment   PaymentReference
	// Trigger names the path that confirmed payment, e.g. "confirm" or "webhook".
	Trigger string
	Actor   string
}

// PaymentEventKind is the normalized outcome a provider notification maps to.
type PaymentEventKind string

const (
	PaymentSucceeded  PaymentEventKind = "succeeded"
	PaymentAuthorized PaymentEventKind = "authorized"
	PaymentFailed     PaymentEventKind = "failed"
	PaymentCancelled  PaymentEventKind = "cancelled"
	PaymentRefunded   PaymentEventKind = "refunded"
	PaymentChargeback PaymentEventKind = "chargeback"
)

// PaymentEvent is a provider notification after translation. The order is
// resolved from OrderID, then IntentID, then SessionID.
type PaymentEvent struct {
	Kind                  PaymentEventKind
	OrderID               *uuid.UUID
	SessionID             *uuid.UUID
	IntentID              string
	Provider              string
	ProviderTransactionID string
	AmountCents           int64
	Currency              enums.Currency
	// FullRefund marks a refund covering the whole captured amount.
	FullRefund      bool
	Reason          string
	GatewayResponse json.RawMessage
	OccurredAt      time.Time
}

// PaymentOutcome reports what RecordPaymentEvent did.
type PaymentOutcome struct {
	OrderID   *uuid.UUID              `json:"order_id,omitempty"`
	Created   bool                    `json:"created"`
	Duplicate bool                    `json:"duplicate"`
	Status    enums.PaymentStatus     `json:"payment_status,omitempty"`
	Changes   []enums.PaymentStatus   `json:"changes,omitempty"`
	Recorded  enums.TransactionStatus `json:"recorded,omitempty"`
}

// FulfillInput selects what to fulfill. A nil ItemID fulfills every item;
// a nil Quantity fulfills the item's remaining quantity.
type FulfillInput struct {
	ItemID   *uuid.UUID `json:"item_id,omitempty"`
	Quantity *int       `json:"quantity,omitempty"`
}

// OrderDetail is the order with its audit trail and payment ledger.
type OrderDetail struct {
	Order        models.Order                `json:"order"`
	History      []models.OrderStatusHistory `json:"history"`
	Transactions []models.PaymentTransaction `json:"transactions"`
}
