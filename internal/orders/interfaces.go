package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository defines persistence for orders, their items, status history,
// payment ledger rows and the checkout session transitions orders own.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderBySession(ctx context.Context, sessionID uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListOrders(ctx context.Context, userID *uuid.UUID, params pagination.Params) ([]models.Order, error)
	FindUnsyncedPaidOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)

	AddItemFulfilled(ctx context.Context, orderID, itemID uuid.UUID, qty int) (fulfilled int, found bool, err error)
	FulfillAllItems(ctx context.Context, orderID uuid.UUID) error
	UpdateItemStatus(ctx context.Context, itemID uuid.UUID, status enums.FulfillmentStatus) error

	AppendHistory(ctx context.Context, entries ...models.OrderStatusHistory) error
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)

	InsertTransaction(ctx context.Context, txn *models.PaymentTransaction) (inserted bool, err error)
	ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error)

	FindSession(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	FindSessionByIntent(ctx context.Context, intentID string) (*models.CheckoutSession, error)
	ClaimSession(ctx context.Context, sessionID, orderID uuid.UUID) (bool, error)
	RecordSessionFailure(ctx context.Context, sessionID uuid.UUID, reason string) error
}
