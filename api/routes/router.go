package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// RedisStore is the slice of the Redis client the HTTP layer needs.
type RedisStore interface {
	pinger
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// InventoryService is the stock surface exposed over HTTP.
type InventoryService interface {
	GetAvailability(ctx context.Context, productID uuid.UUID) (inventory.Availability, error)
	UpsertRecord(ctx context.Context, productID uuid.UUID, settings inventory.RecordSettings, actor string) (*models.InventoryRecord, error)
	Adjust(ctx context.Context, productID uuid.UUID, delta int, actor string) (*models.InventoryRecord, error)
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Metrics       *metrics.Storefront
	Gatherer      prometheus.Gatherer
	DB            pinger
	Redis         RedisStore
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Inventory     InventoryService
	StripeWebhook webhookcontrollers.StripeWebhookService
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.Metrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/inventory/{productId}", controllers.InventoryAvailability(deps.Inventory, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Use(middleware.RateLimit("checkout", cfg.RateLimit.CheckoutLimit, cfg.RateLimit.CheckoutWindow, deps.Redis, logg))
			r.Use(middleware.Idempotency(deps.Redis, middleware.CheckoutReplayTTL, logg))
			r.Post("/checkout", controllers.BeginCheckout(deps.Checkout, logg))
			r.Post("/checkout/{sessionId}/confirm", controllers.ConfirmCheckout(deps.Checkout, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Get("/orders", ordercontrollers.List(deps.Orders, logg))
			r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(deps.Redis, middleware.AdminReplayTTL, logg))

			r.Put("/inventory/{productId}", controllers.AdminUpsertInventory(deps.Inventory, logg))
			r.Post("/inventory/{productId}/adjust", controllers.AdminAdjustInventory(deps.Inventory, logg))

			r.Post("/orders/{orderId}/fulfill", ordercontrollers.Fulfill(deps.Orders, logg))
			r.Post("/orders/{orderId}/status", ordercontrollers.TransitionStatus(deps.Orders, logg))
			r.Post("/orders/{orderId}/void", ordercontrollers.VoidPayment(deps.Orders, logg))
			r.Post("/orders/{orderId}/fulfillment/recompute", ordercontrollers.RecomputeFulfillment(deps.Orders, logg))
		})
	})

	return r
}
