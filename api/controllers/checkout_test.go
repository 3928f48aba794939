package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubCheckout struct {
	beginUser   *auth.CurrentUser
	beginInput  checkoutsvc.BeginInput
	beginResult *checkoutsvc.BeginResult

	confirmSession uuid.UUID
	confirmInput   checkoutsvc.ConfirmInput
	confirmResult  *checkoutsvc.ConfirmResult

	err error
}

func (s *stubCheckout) Begin(_ context.Context, user *auth.CurrentUser, input checkoutsvc.BeginInput) (*checkoutsvc.BeginResult, error) {
	s.beginUser = user
	s.beginInput = input
	return s.beginResult, s.err
}

func (s *stubCheckout) Confirm(_ context.Context, _ *auth.CurrentUser, sessionID uuid.UUID, input checkoutsvc.ConfirmInput) (*checkoutsvc.ConfirmResult, error) {
	s.confirmSession = sessionID
	s.confirmInput = input
	return s.confirmResult, s.err
}

func (s *stubCheckout) ExpireStale(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func sampleSession() *models.CheckoutSession {
	return &models.CheckoutSession{
		ID:     uuid.New(),
		Status: enums.CheckoutSessionOpen,
		Lines: types.CartLines{{
			ProductID: uuid.New(), SKU: "MUG-1", Name: "Mug", UnitPriceCents: 2000, Quantity: 2,
		}},
		Currency:      enums.CurrencyUSD,
		SubtotalCents: 4000,
		TaxCents:      330,
		ShippingCents: 500,
		TotalCents:    4830,
	}
}

func serve(method, pattern, target, body string, handler http.HandlerFunc, user *auth.CurrentUser) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, handler)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), *user))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestBeginCheckoutCreated(t *testing.T) {
	session := sampleSession()
	svc := &stubCheckout{beginResult: &checkoutsvc.BeginResult{
		Session: session,
		Intent:  &payments.Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Status: "requires_payment_method", AmountCents: 4830, Currency: enums.CurrencyUSD},
	}}
	productID := session.Lines[0].ProductID

	rec := serve(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout",
		`{"email":"guest@example.com","lines":[{"product_id":"`+productID.String()+`","quantity":2}]}`,
		BeginCheckout(svc, nil), nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Nil(t, svc.beginUser)
	require.Equal(t, "guest@example.com", svc.beginInput.Email)
	require.Len(t, svc.beginInput.Lines, 1)

	var body struct {
		Data struct {
			SessionID     uuid.UUID `json:"session_id"`
			TotalCents    int64     `json:"total_cents"`
			Reused        bool      `json:"reused"`
			PaymentIntent struct {
				ID           string `json:"id"`
				ClientSecret string `json:"client_secret"`
			} `json:"payment_intent"`
			Lines []types.CartLine `json:"lines"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, session.ID, body.Data.SessionID)
	require.Equal(t, int64(4830), body.Data.TotalCents)
	require.False(t, body.Data.Reused)
	require.Equal(t, "pi_1_secret", body.Data.PaymentIntent.ClientSecret)
	require.Len(t, body.Data.Lines, 1)
}

func TestBeginCheckoutReusedAnswersOK(t *testing.T) {
	svc := &stubCheckout{beginResult: &checkoutsvc.BeginResult{Session: sampleSession(), Reused: true}}
	user := &auth.CurrentUser{ID: uuid.New()}

	rec := serve(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout",
		`{"lines":[{"product_id":"`+uuid.NewString()+`","quantity":1}]}`, BeginCheckout(svc, nil), user)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.beginUser)
	require.Equal(t, user.ID, svc.beginUser.ID)
}

func TestBeginCheckoutRejectsBadBodies(t *testing.T) {
	svc := &stubCheckout{}
	for _, body := range []string{
		`{"lines":[]}`,
		`{}`,
		`{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":1}],"email":"nope"}`,
		`{"lines":[{"product_id":"` + uuid.NewString() + `","quantity":1}],"coupon":"FREE"}`,
	} {
		rec := serve(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout", body, BeginCheckout(svc, nil), nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestBeginCheckoutSurfacesServiceErrors(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeUpstream, "processor down")}
	rec := serve(http.MethodPost, "/api/v1/checkout", "/api/v1/checkout",
		`{"email":"a@b.co","lines":[{"product_id":"`+uuid.NewString()+`","quantity":1}]}`, BeginCheckout(svc, nil), nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestConfirmCheckout(t *testing.T) {
	order := &models.Order{ID: uuid.New(), OrderNumber: "SF-X-0001", Status: enums.OrderStatusProcessing}
	svc := &stubCheckout{confirmResult: &checkoutsvc.ConfirmResult{Order: order, Created: true}}
	sessionID := uuid.New()

	rec := serve(http.MethodPost, "/api/v1/checkout/{sessionId}/confirm", "/api/v1/checkout/"+sessionID.String()+"/confirm",
		`{"payment_intent_id":"pi_1"}`, ConfirmCheckout(svc, nil), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, sessionID, svc.confirmSession)
	require.Equal(t, "pi_1", svc.confirmInput.PaymentIntentID)

	var body struct {
		Data struct {
			Created bool `json:"created"`
			Order   struct {
				OrderNumber string `json:"order_number"`
			} `json:"order"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Data.Created)
	require.Equal(t, "SF-X-0001", body.Data.Order.OrderNumber)

	svc.confirmResult.Created = false
	rec = serve(http.MethodPost, "/api/v1/checkout/{sessionId}/confirm", "/api/v1/checkout/"+sessionID.String()+"/confirm",
		`{"payment_intent_id":"pi_1"}`, ConfirmCheckout(svc, nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestConfirmCheckoutValidation(t *testing.T) {
	svc := &stubCheckout{}
	rec := serve(http.MethodPost, "/api/v1/checkout/{sessionId}/confirm", "/api/v1/checkout/nope/confirm",
		`{"payment_intent_id":"pi_1"}`, ConfirmCheckout(svc, nil), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(http.MethodPost, "/api/v1/checkout/{sessionId}/confirm", "/api/v1/checkout/"+uuid.NewString()+"/confirm",
		`{}`, ConfirmCheckout(svc, nil), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = pkgerrors.Transition("payment_intent", "processing", "succeeded")
	rec = serve(http.MethodPost, "/api/v1/checkout/{sessionId}/confirm", "/api/v1/checkout/"+uuid.NewString()+"/confirm",
		`{"payment_intent_id":"pi_1"}`, ConfirmCheckout(svc, nil), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}
