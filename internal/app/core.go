package app

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// CoreParams carries the shared infrastructure every binary bootstraps.
type CoreParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Metrics *metrics.Storefront
	// Payments overrides the Stripe client; nil builds one from Config.Stripe.
	Payments payments.IntentAPI
}

// Core is the wired domain layer shared by the api and the cron worker.
type Core struct {
	Outbox    *outbox.Service
	Products  *products.Repository
	Inventory *inventory.Service
	Orders    orders.Service
	Checkout  checkout.Service
	Gateway   *payments.Gateway
}

// NewCore wires products, inventory, orders and checkout over one database.
func NewCore(ctx context.Context, params CoreParams) (*Core, error) {
	if params.Config == nil || params.Logger == nil || params.DB == nil {
		return nil, fmt.Errorf("config, logger and db are required")
	}
	cfg := params.Config
	gormDB := params.DB.DB()

	intentAPI := params.Payments
	if intentAPI == nil {
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, params.Logger)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		intentAPI = client
	}
	gateway, err := payments.NewGateway(intentAPI)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), params.Logger)
	productRepo := products.NewRepository(gormDB)

	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		Repo:        inventory.NewRepository(gormDB),
		TX:          params.DB,
		Products:    productRepo,
		Outbox:      outboxSvc,
		Metrics:     params.Metrics,
		Logger:      params.Logger,
		MaxAttempts: cfg.Inventory.AdjustMaxAttempts,
		BaseDelay:   cfg.Inventory.AdjustBaseDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(gormDB),
		TX:        params.DB,
		Outbox:    outboxSvc,
		Inventory: inventorySvc,
		Numbers:   orders.NewNumberGenerator(cfg.Checkout.OrderNumberPrefix, nil),
		Metrics:   params.Metrics,
		Logger:    params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Repo:         checkout.NewRepository(gormDB),
		Products:     productRepo,
		Availability: inventorySvc,
		Gateway:      gateway,
		Orders:       ordersSvc,
		Config:       cfg.Checkout,
		Metrics:      params.Metrics,
		Logger:       params.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout service: %w", err)
	}

	return &Core{
		Outbox:    outboxSvc,
		Products:  productRepo,
		Inventory: inventorySvc,
		Orders:    ordersSvc,
		Checkout:  checkoutSvc,
		Gateway:   gateway,
	}, nil
}
