package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const provider = "stripe"

type eventVerifier interface {
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
}

type paymentRecorder interface {
	RecordPaymentEvent(ctx context.Context, event orders.PaymentEvent) (*orders.PaymentOutcome, error)
}

type ServiceParams struct {
	Verifier eventVerifier
	Orders   paymentRecorder
	Guard    *IdempotencyGuard
	Metrics  *metrics.Storefront
	Logger   *logger.Logger
}

type Service struct {
	verifier eventVerifier
	orders   paymentRecorder
	guard    *IdempotencyGuard
	metrics  *metrics.Storefront
	logg     *logger.Logger
}

// Result reports what happened to one delivery.
type Result struct {
	Handled   bool   `json:"handled"`
	EventType string `json:"event_type"`
	Replayed  bool   `json:"replayed,omitempty"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event verifier required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	return &Service{
		verifier: params.Verifier,
		orders:   params.Orders,
		guard:    params.Guard,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// VerifyAndDispatch authenticates a raw delivery and records it against the
// order state machine. Only signature and persistence failures return errors;
// events that reference unknown orders or illegal transitions are logged and
// acknowledged so the provider stops retrying them. A failed delivery leaves
// no mark, so the provider's retry is applied.
func (s *Service) VerifyAndDispatch(ctx context.Context, payload []byte, signature string) (Result, error) {
	event, err := s.verifier.VerifyEvent(payload, signature)
	if err != nil {
		s.metrics.WebhookEvent("unknown", "invalid_signature")
		return Result{}, err
	}
	eventType := string(event.Type)
	result := Result{EventType: eventType}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": eventType,
		})
	}

	seen, err := s.guard.Seen(ctx, event.ID)
	if err != nil {
		s.metrics.WebhookEvent(eventType, "failed")
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook idempotency check")
	}
	if seen {
		s.metrics.WebhookEvent(eventType, "replayed")
		result.Handled = true
		result.Replayed = true
		return result, nil
	}

	handled, err := s.HandleEvent(ctx, &event)
	result.Handled = handled
	switch {
	case err == nil:
		if !handled {
			s.metrics.WebhookEvent(eventType, "unhandled")
		}
	case acknowledged(err):
		s.metrics.WebhookEvent(eventType, "ignored")
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stripe webhook ignored")
		}
	default:
		s.metrics.WebhookEvent(eventType, "failed")
		return result, err
	}

	// The event is applied; a client disconnect must not skip the mark.
	if err := s.guard.Mark(context.WithoutCancel(ctx), event.ID); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "mark stripe webhook event")
	}
	return result, nil
}

// HandleEvent maps a verified event onto a payment event. It reports false for
// event types that carry no order state.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (bool, error) {
	if event == nil || event.Data == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	paymentEvent, ok, err := Translate(event)
	if err != nil || !ok {
		return ok, err
	}

	outcome, err := s.orders.RecordPaymentEvent(ctx, *paymentEvent)
	if err != nil {
		return true, err
	}

	label := "processed"
	if outcome != nil && outcome.Duplicate {
		label = "duplicate"
	}
	s.metrics.WebhookEvent(string(event.Type), label)
	if s.logg != nil {
		fields := map[string]any{"payment_event": string(paymentEvent.Kind), "outcome": label}
		if outcome != nil && outcome.OrderID != nil {
			fields["order_id"] = outcome.OrderID.String()
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "stripe webhook processed")
	}
	return true, nil
}

// Translate decodes the event object into the processor-neutral payment event.
func Translate(event *stripe.Event) (*orders.PaymentEvent, bool, error) {
	occurred := time.Unix(event.Created, 0).UTC()
	if event.Created == 0 {
		occurred = time.Now().UTC()
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentAmountCapturableUpdated,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		out := &orders.PaymentEvent{
			IntentID:              pi.ID,
			Provider:              provider,
			ProviderTransactionID: pi.ID,
			AmountCents:           pi.Amount,
			Currency:              currencyOf(pi.Currency),
			SessionID:             sessionFromMetadata(pi.Metadata),
			GatewayResponse:       event.Data.Raw,
			OccurredAt:            occurred,
		}
		switch event.Type {
		case stripe.EventTypePaymentIntentSucceeded:
			out.Kind = orders.PaymentSucceeded
			if pi.AmountReceived > 0 {
				out.AmountCents = pi.AmountReceived
			}
		case stripe.EventTypePaymentIntentAmountCapturableUpdated:
			out.Kind = orders.PaymentAuthorized
			if pi.AmountCapturable > 0 {
				out.AmountCents = pi.AmountCapturable
			}
		case stripe.EventTypePaymentIntentPaymentFailed:
			out.Kind = orders.PaymentFailed
			// each attempt fails its own charge; keying on it keeps retries distinct
			out.ProviderTransactionID = event.ID
			if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
				out.ProviderTransactionID = pi.LatestCharge.ID
			}
			out.Reason = "payment failed"
			if pi.LastPaymentError != nil {
				if pi.LastPaymentError.Msg != "" {
					out.Reason = pi.LastPaymentError.Msg
				} else if pi.LastPaymentError.Code != "" {
					out.Reason = string(pi.LastPaymentError.Code)
				}
			}
		case stripe.EventTypePaymentIntentCanceled:
			out.Kind = orders.PaymentCancelled
			out.Reason = "payment cancelled"
			if pi.CancellationReason != "" {
				out.Reason = string(pi.CancellationReason)
			}
		}
		return out, true, nil

	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		out := &orders.PaymentEvent{
			Kind:                  orders.PaymentRefunded,
			Provider:              provider,
			ProviderTransactionID: event.ID,
			AmountCents:           ch.AmountRefunded,
			Currency:              currencyOf(ch.Currency),
			SessionID:             sessionFromMetadata(ch.Metadata),
			FullRefund:            ch.Refunded || (ch.Amount > 0 && ch.AmountRefunded >= ch.Amount),
			GatewayResponse:       event.Data.Raw,
			OccurredAt:            occurred,
		}
		if ch.PaymentIntent != nil {
			out.IntentID = ch.PaymentIntent.ID
		}
		// refunds are listed newest first
		if ch.Refunds != nil && len(ch.Refunds.Data) > 0 && ch.Refunds.Data[0] != nil {
			latest := ch.Refunds.Data[0]
			out.ProviderTransactionID = latest.ID
			out.AmountCents = latest.Amount
			if latest.Reason != "" {
				out.Reason = string(latest.Reason)
			}
		}
		return out, true, nil

	case stripe.EventTypeChargeDisputeCreated:
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode dispute event")
		}
		out := &orders.PaymentEvent{
			Kind:                  orders.PaymentChargeback,
			Provider:              provider,
			ProviderTransactionID: dispute.ID,
			AmountCents:           dispute.Amount,
			Currency:              currencyOf(dispute.Currency),
			Reason:                string(dispute.Reason),
			GatewayResponse:       event.Data.Raw,
			OccurredAt:            occurred,
		}
		if dispute.PaymentIntent != nil {
			out.IntentID = dispute.PaymentIntent.ID
		}
		if out.IntentID == "" && dispute.Charge != nil && dispute.Charge.PaymentIntent != nil {
			out.IntentID = dispute.Charge.PaymentIntent.ID
		}
		return out, true, nil
	}

	return nil, false, nil
}

func acknowledged(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case pkgerrors.CodeNotFound, pkgerrors.CodeInvalidTransition, pkgerrors.CodeValidation:
		return true
	}
	return false
}

func currencyOf(raw stripe.Currency) enums.Currency {
	c, err := enums.ParseCurrency(string(raw))
	if err != nil {
		return ""
	}
	return c
}

func sessionFromMetadata(meta map[string]string) *uuid.UUID {
	raw, ok := meta[payments.SessionMetadataKey]
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
