package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// SessionMetadataKey links a processor intent back to its checkout session.
const SessionMetadataKey = "checkout_session_id"

// IntentAPI is the slice of the processor client the gateway drives.
type IntentAPI interface {
	CreatePaymentIntent(ctx context.Context, in pkgstripe.IntentInput) (*stripe.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	SigningSecret() string
}

// Intent is the processor-neutral view of a payment intent.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Status       string            `json:"status"`
	AmountCents  int64             `json:"amount_cents"`
	Currency     enums.Currency    `json:"currency"`
	Metadata     map[string]string `json:"-"`
}

// Succeeded reports whether the processor captured the funds.
func (i Intent) Succeeded() bool {
	return i.Status == string(stripe.PaymentIntentStatusSucceeded)
}

// Canceled reports whether the intent can no longer be paid.
func (i Intent) Canceled() bool {
	return i.Status == string(stripe.PaymentIntentStatusCanceled)
}

// SessionID returns the checkout session recorded in the intent metadata.
func (i Intent) SessionID() (uuid.UUID, bool) {
	raw, ok := i.Metadata[SessionMetadataKey]
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

type Gateway struct {
	api IntentAPI
}

func NewGateway(api IntentAPI) (*Gateway, error) {
	if api == nil {
		return nil, errors.New("intent api required")
	}
	return &Gateway{api: api}, nil
}

// CreateIntent opens a payment intent for the session total. The processor
// idempotency key is derived from the session so retries reuse the intent.
func (g *Gateway) CreateIntent(ctx context.Context, session *models.CheckoutSession, metadata map[string]string) (*Intent, error) {
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session required")
	}
	if session.TotalCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if session.Status == enums.CheckoutSessionCompleted {
		return nil, pkgerrors.Transition("checkout_session", string(session.Status), "payment_intent")
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[SessionMetadataKey] = session.ID.String()

	in := pkgstripe.IntentInput{
		AmountCents:    session.TotalCents,
		Currency:       string(session.Currency),
		Metadata:       meta,
		IdempotencyKey: "checkout-session-" + session.ID.String(),
	}
	if session.GuestEmail != nil {
		in.ReceiptEmail = *session.GuestEmail
	}

	pi, err := g.api.CreatePaymentIntent(ctx, in)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "create payment intent")
	}
	return fromStripe(pi), nil
}

func (g *Gateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	pi, err := g.api.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "retrieve payment intent")
	}
	return fromStripe(pi), nil
}

// VerifyEvent checks the signature header against the configured signing
// secret and decodes the event envelope.
func (g *Gateway) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	if strings.TrimSpace(signature) == "" {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeInvalidSignature, "missing Stripe-Signature header")
	}
	event, err := webhook.ConstructEvent(payload, signature, g.api.SigningSecret())
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "invalid stripe signature")
	}
	return event, nil
}

func fromStripe(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return &Intent{}
	}
	currency, _ := enums.ParseCurrency(string(pi.Currency))
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     currency,
		Metadata:     pi.Metadata,
	}
}
