package orders

import (
	"time"

	"github.com/google/uuid"

	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// OrderResponse is the public shape of an order.
type OrderResponse struct {
	ID                uuid.UUID      `json:"id"`
	OrderNumber       string         `json:"order_number"`
	CheckoutSessionID uuid.UUID      `json:"checkout_session_id"`
	UserID            *uuid.UUID     `json:"user_id,omitempty"`
	GuestEmail        *string        `json:"guest_email,omitempty"`
	Status            string         `json:"status"`
	PaymentStatus     string         `json:"payment_status"`
	FulfillmentStatus string         `json:"fulfillment_status"`
	Currency          string         `json:"currency"`
	SubtotalCents     int64          `json:"subtotal_cents"`
	TaxCents          int64          `json:"tax_cents"`
	ShippingCents     int64          `json:"shipping_cents"`
	DiscountCents     int64          `json:"discount_cents"`
	TotalCents        int64          `json:"total_cents"`
	ShippingAddress   *types.Address `json:"shipping_address,omitempty"`
	BillingAddress    *types.Address `json:"billing_address,omitempty"`
	InventorySyncedAt *time.Time     `json:"inventory_synced_at,omitempty"`
	Items             []ItemResponse `json:"items"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type ItemResponse struct {
	ID                uuid.UUID `json:"id"`
	ProductID         uuid.UUID `json:"product_id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	UnitPriceCents    int64     `json:"unit_price_cents"`
	Quantity          int       `json:"quantity"`
	TotalPriceCents   int64     `json:"total_price_cents"`
	QuantityFulfilled int       `json:"quantity_fulfilled"`
	FulfillmentStatus string    `json:"fulfillment_status"`
}

type historyResponse struct {
	Field     string    `json:"field"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Actor     string    `json:"actor"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type transactionResponse struct {
	ID                    uuid.UUID `json:"id"`
	Provider              string    `json:"provider"`
	ProviderTransactionID string    `json:"provider_transaction_id"`
	Type                  string    `json:"type"`
	Status                string    `json:"status"`
	AmountCents           int64     `json:"amount_cents"`
	Currency              string    `json:"currency"`
	FailureReason         *string   `json:"failure_reason,omitempty"`
	ProcessedAt           time.Time `json:"processed_at"`
}

type detailResponse struct {
	OrderResponse
	History      []historyResponse     `json:"history"`
	Transactions []transactionResponse `json:"transactions"`
}

type listResponse struct {
	Items      []OrderResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// NewOrderResponse maps an order and its items.
func NewOrderResponse(order *models.Order) OrderResponse {
	if order == nil {
		return OrderResponse{}
	}
	items := make([]ItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemResponse{
			ID:                item.ID,
			ProductID:         item.ProductID,
			SKU:               item.SKU,
			Name:              item.Name,
			UnitPriceCents:    item.UnitPriceCents,
			Quantity:          item.Quantity,
			TotalPriceCents:   item.TotalPriceCents,
			QuantityFulfilled: item.QuantityFulfilled,
			FulfillmentStatus: string(item.FulfillmentStatus),
		})
	}
	return OrderResponse{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		CheckoutSessionID: order.CheckoutSessionID,
		UserID:            order.UserID,
		GuestEmail:        order.GuestEmail,
		Status:            string(order.Status),
		PaymentStatus:     string(order.PaymentStatus),
		FulfillmentStatus: string(order.FulfillmentStatus),
		Currency:          string(order.Currency),
		SubtotalCents:     order.SubtotalCents,
		TaxCents:          order.TaxCents,
		ShippingCents:     order.ShippingCents,
		DiscountCents:     order.DiscountCents,
		TotalCents:        order.TotalCents,
		ShippingAddress:   order.ShippingAddress,
		BillingAddress:    order.BillingAddress,
		InventorySyncedAt: order.InventorySyncedAt,
		Items:             items,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

func newDetailResponse(detail *internalorders.OrderDetail) detailResponse {
	resp := detailResponse{
		OrderResponse: NewOrderResponse(&detail.Order),
		History:       make([]historyResponse, 0, len(detail.History)),
		Transactions:  make([]transactionResponse, 0, len(detail.Transactions)),
	}
	for _, h := range detail.History {
		resp.History = append(resp.History, historyResponse{
			Field:     string(h.Field),
			From:      h.FromValue,
			To:        h.ToValue,
			Actor:     h.Actor,
			Note:      h.Note,
			CreatedAt: h.CreatedAt,
		})
	}
	for _, txn := range detail.Transactions {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			ID:                    txn.ID,
			Provider:              txn.Provider,
			ProviderTransactionID: txn.ProviderTransactionID,
			Type:                  string(txn.Type),
			Status:                string(txn.Status),
			AmountCents:           txn.AmountCents,
			Currency:              string(txn.Currency),
			FailureReason:         txn.FailureReason,
			ProcessedAt:           txn.ProcessedAt,
		})
	}
	return resp
}

func newListResponse(page pagination.Page[models.Order]) listResponse {
	resp := listResponse{
		Items:      make([]OrderResponse, 0, len(page.Items)),
		NextCursor: page.NextCursor,
	}
	for i := range page.Items {
		resp.Items = append(resp.Items, NewOrderResponse(&page.Items[i]))
	}
	return resp
}
