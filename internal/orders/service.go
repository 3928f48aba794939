package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const systemActor = "system"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InventoryLedger applies and reverses an order's stock movements.
type InventoryLedger interface {
	SyncFromOrder(ctx context.Context, orderID uuid.UUID, items []inventory.LineItem) (*inventory.SyncReport, error)
	RestockOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, items []inventory.LineItem, actor string) ([]inventory.LineResult, error)
}

// Service defines the order and payment state machine.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, bool, error)
	RecordPaymentEvent(ctx context.Context, event PaymentEvent) (*PaymentOutcome, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus, actor string, note *string) (*models.Order, error)
	VoidPayment(ctx context.Context, orderID uuid.UUID, actor string) (*models.Order, error)
	FulfillItem(ctx context.Context, orderID uuid.UUID, input FulfillInput, actor string) (*models.Order, error)
	RecomputeFulfillment(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, user auth.CurrentUser) (*OrderDetail, error)
	ListOrders(ctx context.Context, user auth.CurrentUser, params pagination.Params) (pagination.Page[models.Order], error)
	UnsyncedOrders(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error)
	SyncInventory(ctx context.Context, order *models.Order) (*inventory.SyncReport, error)
}

// ServiceParams wires the order service. Metrics and Logger may be nil.
type ServiceParams struct {
	Repo      Repository
	TX        txRunner
	Outbox    outboxPublisher
	Inventory InventoryLedger
	Numbers   *NumberGenerator
	Metrics   *metrics.Storefront
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory InventoryLedger
	numbers   *NumberGenerator
	metrics   *metrics.Storefront
	logg      *logger.Logger
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TX == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	numbers := params.Numbers
	if numbers == nil {
		numbers = NewNumberGenerator("", nil)
	}
	return &service{
		repo:      params.Repo,
		tx:        params.TX,
		outbox:    params.Outbox,
		inventory: params.Inventory,
		numbers:   numbers,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// PlaceOrder converts the session snapshot into an order in one transaction.
// A session that is already completed yields its existing order and false;
// only a new placement needs a payment reference.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, bool, error) {
	if input.SessionID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id required")
	}
	if input.Payment.Provider == "" {
		input.Payment.Provider = "stripe"
	}
	actor := actorOrSystem(input.Actor)

	var (
		order   *models.Order
		created bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		session, err := repo.FindSession(ctx, input.SessionID)
		if err != nil {
			return notFoundOr(err, "checkout session not found", "load checkout session")
		}
		if session.Status == enums.CheckoutSessionCompleted {
			order, err = repo.FindOrderBySession(ctx, session.ID)
			return notFoundOr(err, "order not found for completed session", "load order")
		}
		if strings.TrimSpace(input.Payment.TransactionID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
		}

		orderID := uuid.New()
		claimed, err := repo.ClaimSession(ctx, session.ID, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim checkout session")
		}
		if !claimed {
			order, err = repo.FindOrderBySession(ctx, session.ID)
			return notFoundOr(err, "order not found for completed session", "load order")
		}

		order = orderFromSession(orderID, s.numbers.Next(), session)
		if err := repo.CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repo.AppendHistory(ctx,
			historyEntry(order.ID, enums.StatusFieldStatus, "", string(order.Status), actor, nil),
			historyEntry(order.ID, enums.StatusFieldPaymentStatus, "", string(order.PaymentStatus), actor, nil),
		); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}

		currency := input.Payment.Currency
		if currency == "" {
			currency = session.Currency
		}
		amount := input.Payment.AmountCents
		if amount == 0 {
			amount = session.TotalCents
		}
		if _, err := repo.InsertTransaction(ctx, &models.PaymentTransaction{
			OrderID:               &order.ID,
			CheckoutSessionID:     &session.ID,
			Provider:              input.Payment.Provider,
			ProviderTransactionID: input.Payment.TransactionID,
			Type:                  enums.TransactionPayment,
			Status:                enums.TransactionStatusSucceeded,
			AmountCents:           amount,
			Currency:              currency,
			GatewayResponse:       input.Payment.GatewayResponse,
			ProcessedAt:           time.Now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment transaction")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Data: payloads.OrderPlacedEvent{
				OrderID:           order.ID,
				OrderNumber:       order.OrderNumber,
				CheckoutSessionID: session.ID,
				UserID:            order.UserID,
				TotalCents:        order.TotalCents,
				Currency:          order.Currency,
				PaymentStatus:     order.PaymentStatus,
				ItemCount:         len(order.Items),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order placed")
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.metrics.OrderPlaced(input.Trigger)
		if s.logg != nil {
			logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
				"order_number": order.OrderNumber,
				"trigger":      input.Trigger,
			})
			s.logg.Info(logCtx, "order placed")
		}
		if report, err := s.SyncInventory(ctx, order); err == nil && report.SyncedAt != nil {
			order.InventorySyncedAt = report.SyncedAt
		}
	}
	return order, created, nil
}

// SyncInventory applies the order's sale movements. Failures are logged and
// counted; the reconciliation job retries unsynced orders.
func (s *service) SyncInventory(ctx context.Context, order *models.Order) (*inventory.SyncReport, error) {
	report, err := s.inventory.SyncFromOrder(ctx, order.ID, lineItems(order.Items))
	if err != nil {
		s.metrics.InventorySyncLine("failed")
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
				"error": err.Error(),
			}), "inventory sync deferred")
		}
		return nil, err
	}
	return report, nil
}

func (s *service) UnsyncedOrders(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.FindUnsyncedPaidOrders(ctx, olderThan, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unsynced orders")
	}
	return rows, nil
}

// RecordPaymentEvent appends the ledger row for a provider notification and
// moves the payment status accordingly. Redeliveries are detected by the
// ledger's unique key and reported as duplicates.
func (s *service) RecordPaymentEvent(ctx context.Context, event PaymentEvent) (*PaymentOutcome, error) {
	if event.Provider == "" {
		event.Provider = "stripe"
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.ProviderTransactionID == "" {
		event.ProviderTransactionID = event.IntentID
	}
	if event.ProviderTransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider transaction id required")
	}

	if event.Kind == PaymentSucceeded {
		order, session, err := s.resolve(ctx, s.repo, event)
		if err != nil {
			return nil, err
		}
		if order == nil {
			if session == nil {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no checkout session for payment")
			}
			s.flagAmountMismatch(ctx, session, event)
			placed, created, err := s.PlaceOrder(ctx, PlaceOrderInput{
				SessionID: session.ID,
				Payment: PaymentReference{
					Provider:        event.Provider,
					TransactionID:   event.ProviderTransactionID,
					AmountCents:     event.AmountCents,
					Currency:        event.Currency,
					GatewayResponse: event.GatewayResponse,
				},
				Trigger: "webhook",
				Actor:   "webhook:" + event.Provider,
			})
			if err != nil {
				return nil, err
			}
			return &PaymentOutcome{OrderID: &placed.ID, Created: created, Duplicate: !created, Status: placed.PaymentStatus}, nil
		}
	}

	var outcome *PaymentOutcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, session, err := s.resolve(ctx, repo, event)
		if err != nil {
			return err
		}
		if order != nil {
			order, err = repo.FindOrderForUpdate(ctx, order.ID)
			if err != nil {
				return notFoundOr(err, "order not found", "lock order")
			}
		}
		outcome, err = s.applyPaymentEvent(ctx, tx, repo, order, session, event)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *service) applyPaymentEvent(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, session *models.CheckoutSession, event PaymentEvent) (*PaymentOutcome, error) {
	actor := "webhook:" + event.Provider
	outcome := &PaymentOutcome{}
	if order != nil {
		outcome.OrderID = &order.ID
		outcome.Status = order.PaymentStatus
	}

	txn := &models.PaymentTransaction{
		Provider:              event.Provider,
		ProviderTransactionID: event.ProviderTransactionID,
		AmountCents:           event.AmountCents,
		Currency:              event.Currency,
		GatewayResponse:       event.GatewayResponse,
		ProcessedAt:           event.OccurredAt,
	}
	if order != nil {
		txn.OrderID = &order.ID
		txn.CheckoutSessionID = &order.CheckoutSessionID
		if txn.Currency == "" {
			txn.Currency = order.Currency
		}
	} else if session != nil {
		txn.CheckoutSessionID = &session.ID
		if txn.Currency == "" {
			txn.Currency = session.Currency
		}
	}
	if event.Reason != "" {
		reason := event.Reason
		txn.FailureReason = &reason
	}

	var target enums.PaymentStatus
	switch event.Kind {
	case PaymentSucceeded:
		txn.Type, txn.Status = enums.TransactionPayment, enums.TransactionStatusSucceeded
		target = enums.PaymentStatusPaid
	case PaymentAuthorized:
		txn.Type, txn.Status = enums.TransactionPayment, enums.TransactionStatusPending
		target = enums.PaymentStatusAuthorized
	case PaymentFailed:
		txn.Type, txn.Status = enums.TransactionPayment, enums.TransactionStatusFailed
	case PaymentCancelled:
		txn.Type, txn.Status = enums.TransactionPayment, enums.TransactionStatusCancelled
	case PaymentRefunded:
		if order == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for refund")
		}
		txn.Type, txn.Status = enums.TransactionPartialRefund, enums.TransactionStatusSucceeded
		if event.FullRefund {
			txn.Type = enums.TransactionRefund
			target = enums.PaymentStatusRefunded
		}
	case PaymentChargeback:
		if order == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for chargeback")
		}
		txn.Type, txn.Status = enums.TransactionChargeback, enums.TransactionStatusSucceeded
		target = enums.PaymentStatusVoided
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment event "+string(event.Kind))
	}
	if txn.OrderID == nil && txn.CheckoutSessionID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order or checkout session for payment")
	}
	outcome.Recorded = txn.Status

	inserted, err := repo.InsertTransaction(ctx, txn)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment transaction")
	}
	if !inserted {
		outcome.Duplicate = true
		return outcome, nil
	}

	if event.Kind == PaymentFailed || event.Kind == PaymentCancelled {
		return outcome, s.recordFailure(ctx, tx, repo, order, session, event, txn.Status)
	}
	if order == nil || target == "" {
		return outcome, nil
	}

	steps, err := s.paymentSteps(order.PaymentStatus, target, event.Kind)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		if err := s.movePayment(ctx, tx, repo, order, step, actor, event.ProviderTransactionID, nil); err != nil {
			return nil, err
		}
		outcome.Changes = append(outcome.Changes, step)
	}
	outcome.Status = order.PaymentStatus
	return outcome, nil
}

// paymentSteps plans the edges from the current status to target. Success and
// authorization walk the capture path and are no-ops once passed; refunds and
// chargebacks are single edges validated against the machine.
func (s *service) paymentSteps(from, target enums.PaymentStatus, kind PaymentEventKind) ([]enums.PaymentStatus, error) {
	switch kind {
	case PaymentSucceeded, PaymentAuthorized:
		path := paymentPathTo(from, target)
		if path == nil {
			return nil, nil
		}
		return path, nil
	case PaymentChargeback:
		if from == enums.PaymentStatusVoided {
			return nil, nil
		}
	}
	if err := checkPayment(from, target); err != nil {
		return nil, err
	}
	return []enums.PaymentStatus{target}, nil
}

// flagAmountMismatch reports a captured payment that disagrees with the
// session snapshot. The order is still placed since the money was taken.
func (s *service) flagAmountMismatch(ctx context.Context, session *models.CheckoutSession, event PaymentEvent) {
	amountOff := event.AmountCents != 0 && event.AmountCents != session.TotalCents
	currencyOff := event.Currency != "" && event.Currency != session.Currency
	if !amountOff && !currencyOff {
		return
	}
	s.metrics.PaymentAmountMismatch()
	if s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"checkout_session_id": session.ID.String(),
			"provider_txn_id":     event.ProviderTransactionID,
			"expected_cents":      session.TotalCents,
			"expected_currency":   session.Currency,
			"paid_cents":          event.AmountCents,
			"paid_currency":       event.Currency,
		}), "captured payment does not match checkout session")
	}
}

func (s *service) recordFailure(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, session *models.CheckoutSession, event PaymentEvent, status enums.TransactionStatus) error {
	sessionID := uuid.Nil
	if session != nil {
		sessionID = session.ID
	} else if order != nil {
		sessionID = order.CheckoutSessionID
	}
	reason := event.Reason
	if reason == "" {
		reason = string(status)
	}
	if sessionID != uuid.Nil {
		if err := repo.RecordSessionFailure(ctx, sessionID, reason); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record checkout failure")
		}
	}

	aggregateType, aggregateID := enums.AggregateCheckoutSession, sessionID
	var orderID *uuid.UUID
	if order != nil {
		aggregateType, aggregateID = enums.AggregateOrder, order.ID
		orderID = &order.ID
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Actor:         actorRef("webhook:" + event.Provider),
		Data: payloads.PaymentFailedEvent{
			CheckoutSessionID:     sessionID,
			OrderID:               orderID,
			ProviderTransactionID: event.ProviderTransactionID,
			Status:                status,
			Reason:                event.Reason,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment failed")
	}
	return nil
}

// resolve finds the order an event refers to, falling back to the session.
func (s *service) resolve(ctx context.Context, repo Repository, event PaymentEvent) (*models.Order, *models.CheckoutSession, error) {
	if event.OrderID != nil {
		order, err := repo.FindOrder(ctx, *event.OrderID)
		if err != nil {
			return nil, nil, notFoundOr(err, "order not found", "load order")
		}
		return order, nil, nil
	}

	var (
		session *models.CheckoutSession
		err     error
	)
	switch {
	case event.IntentID != "":
		session, err = repo.FindSessionByIntent(ctx, event.IntentID)
		if errors.Is(err, gorm.ErrRecordNotFound) && event.SessionID != nil {
			session, err = repo.FindSession(ctx, *event.SessionID)
		}
	case event.SessionID != nil:
		session, err = repo.FindSession(ctx, *event.SessionID)
	default:
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "payment event carries no order reference")
	}
	if err != nil {
		return nil, nil, notFoundOr(err, "checkout session not found", "load checkout session")
	}

	order, err := repo.FindOrderBySession(ctx, session.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, session, nil
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, session, nil
}

func (s *service) movePayment(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, to enums.PaymentStatus, actor, providerTxnID string, note *string) error {
	from := order.PaymentStatus
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"payment_status": to}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if err := repo.AppendHistory(ctx, historyEntry(order.ID, enums.StatusFieldPaymentStatus, string(from), string(to), actor, note)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment history")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		Data: payloads.PaymentStatusChangedEvent{
			OrderID:               order.ID,
			OrderNumber:           order.OrderNumber,
			From:                  from,
			To:                    to,
			ProviderTransactionID: providerTxnID,
			Actor:                 actor,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment status changed")
	}
	order.PaymentStatus = to
	return nil
}

// TransitionStatus moves the order along the status edges. Cancelling
// returns stock for every line the inventory sync applied.
func (s *service) TransitionStatus(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus, actor string, note *string) (*models.Order, error) {
	actor = actorOrSystem(actor)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order not found", "lock order")
		}
		from := order.Status
		if err := checkStatus(from, to); err != nil {
			return err
		}
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"status": to}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if err := repo.AppendHistory(ctx, historyEntry(order.ID, enums.StatusFieldStatus, string(from), string(to), actor, note)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}
		if to == enums.OrderStatusCancelled {
			if _, err := s.inventory.RestockOrderTx(ctx, tx, order.ID, lineItems(order.Items), actor); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock cancelled order")
			}
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actor),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				From:        from,
				To:          to,
				Actor:       actor,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status changed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadOrder(ctx, orderID)
}

func (s *service) VoidPayment(ctx context.Context, orderID uuid.UUID, actor string) (*models.Order, error) {
	actor = actorOrSystem(actor)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order not found", "lock order")
		}
		if err := checkPayment(order.PaymentStatus, enums.PaymentStatusVoided); err != nil {
			return err
		}
		return s.movePayment(ctx, tx, repo, order, enums.PaymentStatusVoided, actor, "", nil)
	})
	if err != nil {
		return nil, err
	}
	return s.loadOrder(ctx, orderID)
}

// FulfillItem records shipped quantities and re-derives fulfillment status.
func (s *service) FulfillItem(ctx context.Context, orderID uuid.UUID, input FulfillInput, actor string) (*models.Order, error) {
	if input.Quantity != nil && *input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.Quantity != nil && input.ItemID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity requires item_id")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return notFoundOr(err, "order not found", "lock order")
		}
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot fulfill a cancelled order").
				WithDetails(map[string]string{"field": "status", "from": string(order.Status), "to": string(enums.FulfillmentFulfilled)})
		}

		if input.ItemID == nil {
			if err := repo.FulfillAllItems(ctx, order.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfill items")
			}
		} else {
			item := findItem(order.Items, *input.ItemID)
			if item == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
			}
			qty := item.Remaining()
			if input.Quantity != nil && *input.Quantity < qty {
				qty = *input.Quantity
			}
			if qty > 0 {
				if _, _, err := repo.AddItemFulfilled(ctx, order.ID, item.ID, qty); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfill item")
				}
			}
		}
		return s.rederive(ctx, tx, repo, order.ID, actor)
	})
	if err != nil {
		return nil, err
	}
	return s.loadOrder(ctx, orderID)
}

func (s *service) RecomputeFulfillment(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindOrderForUpdate(ctx, orderID); err != nil {
			return notFoundOr(err, "order not found", "lock order")
		}
		return s.rederive(ctx, tx, repo, orderID, systemActor)
	})
	if err != nil {
		return nil, err
	}
	return s.loadOrder(ctx, orderID)
}

// rederive recomputes item and order fulfillment status from stored quantities.
func (s *service) rederive(ctx context.Context, tx *gorm.DB, repo Repository, orderID uuid.UUID, actor string) error {
	order, err := repo.FindOrderForUpdate(ctx, orderID)
	if err != nil {
		return notFoundOr(err, "order not found", "reload order")
	}
	progress := make([]ItemProgress, 0, len(order.Items))
	for _, item := range order.Items {
		progress = append(progress, ItemProgress{Quantity: item.Quantity, Fulfilled: item.QuantityFulfilled})
		status := itemStatus(item.Quantity, item.QuantityFulfilled)
		if status != item.FulfillmentStatus {
			if err := repo.UpdateItemStatus(ctx, item.ID, status); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item fulfillment")
			}
		}
	}
	from := order.FulfillmentStatus
	to := DeriveFulfillment(progress)
	if from == to {
		return nil
	}
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"fulfillment_status": to}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order fulfillment")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderFulfillmentChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actorOrSystem(actor)),
		Data:          payloads.OrderFulfillmentChangedEvent{OrderID: order.ID, From: from, To: to},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit fulfillment changed")
	}
	return nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, user auth.CurrentUser) (*OrderDetail, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canView(user, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}
	history, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order history")
	}
	txns, err := s.repo.ListTransactions(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transactions")
	}
	return &OrderDetail{Order: *order, History: history, Transactions: txns}, nil
}

func (s *service) ListOrders(ctx context.Context, user auth.CurrentUser, params pagination.Params) (pagination.Page[models.Order], error) {
	if user.ID == uuid.Nil && !user.IsAdmin {
		return pagination.Page[models.Order]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	var owner *uuid.UUID
	if !user.IsAdmin {
		owner = &user.ID
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListOrders(ctx, owner, params)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return pagination.BuildPage(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

func (s *service) loadOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	return order, nil
}

func canView(user auth.CurrentUser, order *models.Order) bool {
	if user.IsAdmin {
		return true
	}
	return user.ID != uuid.Nil && order.UserID != nil && *order.UserID == user.ID
}

func orderFromSession(orderID uuid.UUID, number string, session *models.CheckoutSession) *models.Order {
	items := make([]models.OrderItem, 0, len(session.Lines))
	for i, line := range session.Lines {
		items = append(items, models.OrderItem{
			OrderID:           orderID,
			Position:          i + 1,
			ProductID:         line.ProductID,
			SKU:               line.SKU,
			Name:              line.Name,
			UnitPriceCents:    line.UnitPriceCents,
			Quantity:          line.Quantity,
			TotalPriceCents:   line.TotalCents(),
			FulfillmentStatus: enums.FulfillmentUnfulfilled,
		})
	}
	return &models.Order{
		ID:                orderID,
		OrderNumber:       number,
		CheckoutSessionID: session.ID,
		UserID:            session.UserID,
		GuestEmail:        session.GuestEmail,
		Status:            enums.OrderStatusProcessing,
		PaymentStatus:     enums.PaymentStatusPaid,
		FulfillmentStatus: enums.FulfillmentUnfulfilled,
		Currency:          session.Currency,
		SubtotalCents:     session.SubtotalCents,
		TaxCents:          session.TaxCents,
		ShippingCents:     session.ShippingCents,
		DiscountCents:     session.DiscountCents,
		TotalCents:        session.TotalCents,
		ShippingAddress:   session.ShippingAddress,
		BillingAddress:    session.BillingAddress,
		Items:             items,
	}
}

func historyEntry(orderID uuid.UUID, field enums.StatusField, from, to, actor string, note *string) models.OrderStatusHistory {
	return models.OrderStatusHistory{
		OrderID:   orderID,
		Field:     field,
		FromValue: from,
		ToValue:   to,
		Actor:     actor,
		Note:      note,
	}
}

func lineItems(items []models.OrderItem) []inventory.LineItem {
	out := make([]inventory.LineItem, 0, len(items))
	for _, item := range items {
		out = append(out, inventory.LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

func findItem(items []models.OrderItem, id uuid.UUID) *models.OrderItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}

func notFoundOr(err error, notFoundMsg, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return systemActor
	}
	return actor
}

// actorRef splits "kind:id" actor strings into the envelope form.
func actorRef(actor string) *outbox.ActorRef {
	kind, id, _ := strings.Cut(actor, ":")
	return &outbox.ActorRef{Kind: kind, ID: id}
}
