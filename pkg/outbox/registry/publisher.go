package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregates, topic and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateTypes []enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError tells the publisher to dead-letter a row instead of retrying.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func nonRetryable(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// NewEventRegistry routes order and payment events to the orders topic and
// stock alerts to the inventory topic, which defaults to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	stockTopic := cfg.InventoryTopic
	if stockTopic == "" {
		stockTopic = cfg.OrdersTopic
	}

	onOrder := []enums.OutboxAggregateType{enums.AggregateOrder}
	descriptors := []EventDescriptor{
		{enums.EventOrderPlaced, onOrder, cfg.OrdersTopic, payloadOf[payloads.OrderPlacedEvent]()},
		{enums.EventOrderStatusChanged, onOrder, cfg.OrdersTopic, payloadOf[payloads.OrderStatusChangedEvent]()},
		{enums.EventPaymentStatusChanged, onOrder, cfg.OrdersTopic, payloadOf[payloads.PaymentStatusChangedEvent]()},
		{enums.EventOrderFulfillmentChanged, onOrder, cfg.OrdersTopic, payloadOf[payloads.OrderFulfillmentChangedEvent]()},
		// failures before an order exists hang off the checkout session
		{
			enums.EventPaymentFailed,
			[]enums.OutboxAggregateType{enums.AggregateCheckoutSession, enums.AggregateOrder},
			cfg.OrdersTopic,
			payloadOf[payloads.PaymentFailedEvent](),
		},
		{
			enums.EventInventoryLowStock,
			[]enums.OutboxAggregateType{enums.AggregateInventory},
			stockTopic,
			payloadOf[payloads.InventoryLowStockEvent](),
		},
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists the distinct topics events may be published to, sorted.
func (r *EventRegistry) Topics() []string {
	var topics []string
	for _, desc := range r.entries {
		if !slices.Contains(topics, desc.Topic) {
			topics = append(topics, desc.Topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// Resolve checks the row against its descriptor and decodes the typed
// payload. Every failure is non-retryable: the row will never publish.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case !slices.Contains(desc.AggregateTypes, event.AggregateType):
		return nil, nonRetryable("aggregate %s cannot carry %s", event.AggregateType, event.EventType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("%s row without aggregate id", event.EventType)
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	if envelope.EventType != "" && envelope.EventType != event.EventType {
		return nil, nonRetryable("envelope type %s does not match row type %s", envelope.EventType, event.EventType)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("%s envelope has no data", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
