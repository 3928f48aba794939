package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const consumerName = "inventory-sync"

type idempotencyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type orderLoader interface {
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type inventorySyncer interface {
	SyncInventory(ctx context.Context, order *models.Order) (*inventory.SyncReport, error)
}

// ConsumerParams wires the order event consumer.
type ConsumerParams struct {
	Orders     orderLoader
	Syncer     inventorySyncer
	Store      idempotencyStore
	TTL        time.Duration
	Logger     *logger.Logger
	Subscriber *gcppubsub.Subscriber
}

// Consumer applies inventory for orders as soon as they are placed paid or
// their payment moves to paid. The cron sweep covers anything this path misses.
type Consumer struct {
	orders     orderLoader
	syncer     inventorySyncer
	store      idempotencyStore
	ttl        time.Duration
	logg       *logger.Logger
	subscriber *gcppubsub.Subscriber
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Orders == nil {
		return nil, errors.New("order loader required")
	}
	if params.Syncer == nil {
		return nil, errors.New("inventory syncer required")
	}
	if params.Store == nil {
		return nil, errors.New("idempotency store required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Consumer{
		orders:     params.Orders,
		syncer:     params.Syncer,
		store:      params.Store,
		ttl:        ttl,
		logg:       params.Logger,
		subscriber: params.Subscriber,
	}, nil
}

// Run receives messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscriber == nil {
		return errors.New("orders subscription not configured")
	}
	return c.subscriber.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.Handle(innerCtx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Handle processes one message and reports whether it should be acked.
// Malformed messages are acked so they do not redeliver forever.
func (c *Consumer) Handle(ctx context.Context, msg *gcppubsub.Message) bool {
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
	}
	ctx = c.logg.WithFields(ctx, fields)

	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	if eventType != enums.EventOrderPlaced && eventType != enums.EventPaymentStatusChanged {
		return true
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "invalid payload envelope")
		return true
	}
	orderID, paid, err := paidOrder(eventType, envelope.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "invalid order event payload")
		return true
	}
	if !paid {
		return true
	}

	eventID := strings.TrimSpace(envelope.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if eventID == "" {
		c.logg.Warn(ctx, "event id missing")
		return true
	}
	ctx = c.logg.WithFields(ctx, map[string]any{"event_id": eventID, "order_id": orderID.String()})

	key := c.store.IdempotencyKey(consumerName, eventID)
	fresh, err := c.store.SetNX(ctx, key, "1", c.ttl)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return false
	}
	if !fresh {
		c.logg.Info(ctx, "event already processed")
		return true
	}

	if err := c.sync(ctx, orderID); err != nil {
		c.logg.Error(ctx, "inventory sync failed", err)
		if delErr := c.store.Del(context.WithoutCancel(ctx), key); delErr != nil {
			c.logg.Error(ctx, "release idempotency key failed", delErr)
		}
		return false
	}
	return true
}

// paidOrder extracts the order whose stock should be applied. Orders are
// placed paid, so order_placed carries most of the work; a later move to paid
// is handled too.
func paidOrder(eventType enums.OutboxEventType, data json.RawMessage) (uuid.UUID, bool, error) {
	switch eventType {
	case enums.EventOrderPlaced:
		var event payloads.OrderPlacedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return uuid.Nil, false, err
		}
		return event.OrderID, event.OrderID != uuid.Nil && event.PaymentStatus == enums.PaymentStatusPaid, nil
	case enums.EventPaymentStatusChanged:
		var event payloads.PaymentStatusChangedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return uuid.Nil, false, err
		}
		return event.OrderID, event.OrderID != uuid.Nil && event.To == enums.PaymentStatusPaid, nil
	}
	return uuid.Nil, false, nil
}

func (c *Consumer) sync(ctx context.Context, orderID uuid.UUID) error {
	order, err := c.orders.FindOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if order.InventorySyncedAt != nil {
		return nil
	}
	report, err := c.syncer.SyncInventory(ctx, order)
	if err != nil {
		return err
	}
	if report != nil && !report.AlreadySynced && report.SyncedAt == nil {
		return errors.New("inventory sync incomplete")
	}
	c.logg.Info(ctx, "inventory synced from order event")
	return nil
}
