package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// BeginCheckout prices the cart and returns the session with its payment intent.
// A new session answers 201; a reused one 200.
func BeginCheckout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutsvc.BeginInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Begin(r.Context(), middleware.UserFromContext(r.Context()), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Reused {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, newCheckoutResponse(result))
	}
}

type confirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required,max=255"`
}

// ConfirmCheckout verifies the processor captured payment and places the order.
func ConfirmCheckout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		sessionID, err := validators.ParseUUIDParam(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload confirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), middleware.UserFromContext(r.Context()), sessionID, checkoutsvc.ConfirmInput{
			PaymentIntentID: payload.PaymentIntentID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, confirmResponse{
			Created: result.Created,
			Order:   ordercontrollers.NewOrderResponse(result.Order),
		})
	}
}

type checkoutResponse struct {
	SessionID       uuid.UUID        `json:"session_id"`
	Status          string           `json:"status"`
	Reused          bool             `json:"reused"`
	Currency        string           `json:"currency"`
	Lines           []types.CartLine `json:"lines"`
	SubtotalCents   int64            `json:"subtotal_cents"`
	TaxCents        int64            `json:"tax_cents"`
	ShippingCents   int64            `json:"shipping_cents"`
	DiscountCents   int64            `json:"discount_cents"`
	TotalCents      int64            `json:"total_cents"`
	ShippingAddress *types.Address   `json:"shipping_address,omitempty"`
	BillingAddress  *types.Address   `json:"billing_address,omitempty"`
	PaymentIntent   *payments.Intent `json:"payment_intent,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

type confirmResponse struct {
	Created bool                           `json:"created"`
	Order   ordercontrollers.OrderResponse `json:"order"`
}

func newCheckoutResponse(result *checkoutsvc.BeginResult) checkoutResponse {
	session := result.Session
	if session == nil {
		session = &models.CheckoutSession{}
	}
	lines := []types.CartLine(session.Lines)
	if lines == nil {
		lines = []types.CartLine{}
	}
	return checkoutResponse{
		SessionID:       session.ID,
		Status:          string(session.Status),
		Reused:          result.Reused,
		Currency:        string(session.Currency),
		Lines:           lines,
		SubtotalCents:   session.SubtotalCents,
		TaxCents:        session.TaxCents,
		ShippingCents:   session.ShippingCents,
		DiscountCents:   session.DiscountCents,
		TotalCents:      session.TotalCents,
		ShippingAddress: session.ShippingAddress,
		BillingAddress:  session.BillingAddress,
		PaymentIntent:   result.Intent,
		CreatedAt:       session.CreatedAt,
	}
}
