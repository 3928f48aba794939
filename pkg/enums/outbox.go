package enums

import "slices"

// OutboxAggregateType names the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
	AggregateInventory       OutboxAggregateType = "inventory"
)

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains([]OutboxAggregateType{AggregateOrder, AggregateCheckoutSession, AggregateInventory}, a)
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderPlaced             OutboxEventType = "order_placed"
	EventOrderStatusChanged      OutboxEventType = "order_status_changed"
	EventPaymentStatusChanged    OutboxEventType = "payment_status_changed"
	EventPaymentFailed           OutboxEventType = "payment_failed"
	EventOrderFulfillmentChanged OutboxEventType = "order_fulfillment_changed"
	EventInventoryLowStock       OutboxEventType = "inventory_low_stock"
)

// OutboxEventTypes lists every event type the outbox accepts.
var OutboxEventTypes = []OutboxEventType{
	EventOrderPlaced,
	EventOrderStatusChanged,
	EventPaymentStatusChanged,
	EventPaymentFailed,
	EventOrderFulfillmentChanged,
	EventInventoryLowStock,
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(OutboxEventTypes, e)
}

// OutboxDLQErrorReason records why the publisher gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
