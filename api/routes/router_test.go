package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	pkgauth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryRedis struct {
	data   map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

type stubCheckout struct {
	begins int
}

func (s *stubCheckout) Begin(context.Context, *pkgauth.CurrentUser, checkoutsvc.BeginInput) (*checkoutsvc.BeginResult, error) {
	s.begins++
	return &checkoutsvc.BeginResult{Session: &models.CheckoutSession{ID: uuid.New(), Status: enums.CheckoutSessionOpen}}, nil
}

func (s *stubCheckout) Confirm(context.Context, *pkgauth.CurrentUser, uuid.UUID, checkoutsvc.ConfirmInput) (*checkoutsvc.ConfirmResult, error) {
	return &checkoutsvc.ConfirmResult{Order: &models.Order{ID: uuid.New()}, Created: true}, nil
}

func (s *stubCheckout) ExpireStale(context.Context, time.Time, int) (int64, error) { return 0, nil }

type stubOrders struct {
	orders.Service
	voided int
}

func (s *stubOrders) ListOrders(context.Context, pkgauth.CurrentUser, pagination.Params) (pagination.Page[models.Order], error) {
	return pagination.Page[models.Order]{Items: []models.Order{}}, nil
}

func (s *stubOrders) VoidPayment(_ context.Context, orderID uuid.UUID, _ string) (*models.Order, error) {
	s.voided++
	return &models.Order{ID: orderID, PaymentStatus: enums.PaymentStatusVoided}, nil
}

type stubInventory struct{}

func (stubInventory) GetAvailability(_ context.Context, id uuid.UUID) (inventory.Availability, error) {
	return inventory.AvailabilityOf(id, nil), nil
}

func (stubInventory) UpsertRecord(_ context.Context, id uuid.UUID, s inventory.RecordSettings, _ string) (*models.InventoryRecord, error) {
	return &models.InventoryRecord{ProductID: id, Quantity: s.Quantity}, nil
}

func (stubInventory) Adjust(_ context.Context, id uuid.UUID, delta int, _ string) (*models.InventoryRecord, error) {
	return &models.InventoryRecord{ProductID: id, Quantity: delta}, nil
}

type stubWebhook struct{ calls int }

func (s *stubWebhook) VerifyAndDispatch(context.Context, []byte, string) (stripewebhook.Result, error) {
	s.calls++
	return stripewebhook.Result{Handled: true}, nil
}

type harness struct {
	handler  http.Handler
	cfg      *config.Config
	redis    *memoryRedis
	checkout *stubCheckout
	orders   *stubOrders
	webhook  *stubWebhook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		App:       config.AppConfig{Env: "test"},
		JWT:       config.JWTConfig{Secret: "secret", Issuer: "storefront"},
		RateLimit: config.RateLimitConfig{CheckoutLimit: 100, CheckoutWindow: time.Minute},
	}
	reg := prometheus.NewRegistry()
	h := &harness{
		cfg:      cfg,
		redis:    newMemoryRedis(),
		checkout: &stubCheckout{},
		orders:   &stubOrders{},
		webhook:  &stubWebhook{},
	}
	h.handler = NewRouter(Deps{
		Config:        cfg,
		Logger:        logger.New(logger.Options{ServiceName: "router-test", Level: zerolog.ErrorLevel, Output: io.Discard}),
		Metrics:       metrics.NewStorefront(reg),
		Gatherer:      reg,
		DB:            stubPinger{},
		Redis:         h.redis,
		Checkout:      h.checkout,
		Orders:        h.orders,
		Inventory:     stubInventory{},
		StripeWebhook: h.webhook,
	})
	return h
}

func (h *harness) token(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(h.cfg.JWT, time.Now().UTC(), time.Hour, pkgauth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func (h *harness) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health/live", "", nil).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health/ready", "", nil).Code)

	rec := h.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "storefront_http_requests_total")
}

func TestOrdersRequireAuthentication(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/orders", "", nil).Code)

	rec := h.do(http.MethodGet, "/api/v1/orders", "", map[string]string{"Authorization": h.token(t, enums.UserRoleCustomer)})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	h := newHarness(t)
	path := "/api/admin/v1/orders/" + uuid.NewString() + "/void"

	require.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, path, "", nil).Code)
	require.Equal(t, http.StatusForbidden, h.do(http.MethodPost, path, "", map[string]string{"Authorization": h.token(t, enums.UserRoleCustomer)}).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, path, "", map[string]string{"Authorization": h.token(t, enums.UserRoleAdmin)}).Code)
	require.Equal(t, 1, h.orders.voided)
}

func TestAdminIdempotencyMatchesFullPattern(t *testing.T) {
	h := newHarness(t)
	path := "/api/admin/v1/orders/" + uuid.NewString() + "/void"
	headers := map[string]string{"Authorization": h.token(t, enums.UserRoleAdmin), "Idempotency-Key": "void-1"}

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, path, "", headers).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, path, "", headers).Code)
	require.Equal(t, 1, h.orders.voided)
}

func TestCheckoutIsAnonymousAndIdempotent(t *testing.T) {
	h := newHarness(t)
	body := `{"email":"guest@example.com","lines":[{"product_id":"` + uuid.NewString() + `","quantity":1}]}`
	headers := map[string]string{"Idempotency-Key": "begin-1"}

	first := h.do(http.MethodPost, "/api/v1/checkout", body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := h.do(http.MethodPost, "/api/v1/checkout", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, h.checkout.begins)

	rec := h.do(http.MethodPost, "/api/v1/checkout", body, map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutRateLimited(t *testing.T) {
	h := newHarness(t)
	h.cfg.RateLimit.CheckoutLimit = 1
	h.handler = NewRouter(Deps{Config: h.cfg, Redis: h.redis, Checkout: h.checkout})
	body := `{"email":"guest@example.com","lines":[{"product_id":"` + uuid.NewString() + `","quantity":1}]}`

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/checkout", body, nil).Code)
	require.Equal(t, http.StatusTooManyRequests, h.do(http.MethodPost, "/api/v1/checkout", body, nil).Code)
}

func TestWebhookAndInventoryArePublic(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/api/v1/webhooks/stripe", `{}`, map[string]string{"Stripe-Signature": "sig"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"received":true}`, rec.Body.String())
	require.Equal(t, 1, h.webhook.calls)

	rec = h.do(http.MethodGet, "/api/v1/inventory/"+uuid.NewString(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
