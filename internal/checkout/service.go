package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgcheckout "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type productCatalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type availabilityReader interface {
	GetAvailabilities(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]inventory.Availability, map[uuid.UUID]bool, error)
}

type paymentGateway interface {
	CreateIntent(ctx context.Context, session *models.CheckoutSession, metadata map[string]string) (*payments.Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*payments.Intent, error)
}

type orderPlacer interface {
	PlaceOrder(ctx context.Context, input orders.PlaceOrderInput) (*models.Order, bool, error)
}

// Service drives a cart from pricing to a placed order.
type Service interface {
	Begin(ctx context.Context, user *auth.CurrentUser, input BeginInput) (*BeginResult, error)
	Confirm(ctx context.Context, user *auth.CurrentUser, sessionID uuid.UUID, input ConfirmInput) (*ConfirmResult, error)
	ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error)
}

// BeginInput is the cart a purchaser wants to pay for.
type BeginInput struct {
	Lines           []pkgcheckout.LineRequest `json:"lines" validate:"required,min=1,dive"`
	Email           string                    `json:"email" validate:"omitempty,email"`
	ShippingAddress *types.Address            `json:"shipping_address,omitempty"`
	BillingAddress  *types.Address            `json:"billing_address,omitempty"`
}

// BeginResult carries the priced session and the intent the client confirms.
type BeginResult struct {
	Session *models.CheckoutSession
	Intent  *payments.Intent
	Reused  bool
}

// ConfirmInput names the intent the client completed. Empty means the
// session's own intent.
type ConfirmInput struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type ConfirmResult struct {
	Order   *models.Order
	Created bool
}

type ServiceParams struct {
	Repo         Repository
	Products     productCatalog
	Availability availabilityReader
	Gateway      paymentGateway
	Orders       orderPlacer
	Config       config.CheckoutConfig
	Metrics      *metrics.Storefront
	Logger       *logger.Logger
	Now          func() time.Time
}

type service struct {
	repo         Repository
	products     productCatalog
	availability availabilityReader
	gateway      paymentGateway
	orders       orderPlacer
	cfg          config.CheckoutConfig
	metrics      *metrics.Storefront
	logg         *logger.Logger
	now          func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if params.Availability == nil {
		return nil, fmt.Errorf("availability reader required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order placer required")
	}
	currency, err := enums.ParseCurrency(params.Config.Currency)
	if err != nil {
		return nil, err
	}
	params.Config.Currency = string(currency)
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:         params.Repo,
		products:     params.Products,
		availability: params.Availability,
		gateway:      params.Gateway,
		orders:       params.Orders,
		cfg:          params.Config,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          now,
	}, nil
}

func (s *service) Begin(ctx context.Context, user *auth.CurrentUser, input BeginInput) (*BeginResult, error) {
	purchaser, err := purchaserOf(user, input.Email)
	if err != nil {
		s.metrics.CheckoutSession("rejected")
		return nil, err
	}
	if err := pkgcheckout.ValidateLines(input.Lines, s.cfg.MaxLineQuantity); err != nil {
		s.metrics.CheckoutSession("rejected")
		return nil, err
	}

	lines, err := s.price(ctx, input.Lines)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			s.metrics.CheckoutSession("rejected")
		}
		return nil, err
	}
	totals := pkgcheckout.ComputeTotals(lines.SubtotalCents(), s.cfg)
	hash := pkgcheckout.CartHash(input.Lines)

	now := s.now()
	existing, err := s.repo.FindOpenByHash(ctx, purchaser, hash, now.Add(-s.cfg.SessionTTL))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find open checkout session")
	}
	if existing != nil {
		reuse := sameTotals(existing, totals)
		var intent *payments.Intent
		if reuse {
			intent, err = s.intentFor(ctx, existing)
			if err != nil {
				return nil, err
			}
			reuse = !intent.Canceled()
		}
		if reuse {
			s.metrics.CheckoutSession("reused")
			s.logBegin(ctx, existing, true)
			return &BeginResult{Session: existing, Intent: intent, Reused: true}, nil
		}
		// catalog prices moved or the intent was cancelled: start over
		if err := s.repo.Expire(ctx, existing.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire checkout session")
		}
	}

	session := &models.CheckoutSession{
		ID:              uuid.New(),
		UserID:          purchaser.UserID,
		Status:          enums.CheckoutSessionOpen,
		CartHash:        hash,
		Lines:           lines,
		Currency:        enums.Currency(s.cfg.Currency),
		SubtotalCents:   totals.SubtotalCents,
		TaxCents:        totals.TaxCents,
		ShippingCents:   totals.ShippingCents,
		DiscountCents:   totals.DiscountCents,
		TotalCents:      totals.TotalCents,
		ShippingAddress: normalized(input.ShippingAddress),
		BillingAddress:  normalized(input.BillingAddress),
	}
	if purchaser.UserID == nil {
		email := purchaser.GuestEmail
		session.GuestEmail = &email
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	intent, err := s.intentFor(ctx, session)
	if err != nil {
		return nil, err
	}
	s.metrics.CheckoutSession("created")
	s.logBegin(ctx, session, false)
	return &BeginResult{Session: session, Intent: intent}, nil
}

func (s *service) Confirm(ctx context.Context, user *auth.CurrentUser, sessionID uuid.UUID, input ConfirmInput) (*ConfirmResult, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	if !owns(user, session) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "checkout session belongs to another user")
	}

	actor := "guest"
	if user != nil && user.ID != uuid.Nil {
		actor = "user:" + user.ID.String()
	}

	if session.Status == enums.CheckoutSessionCompleted {
		order, created, err := s.orders.PlaceOrder(ctx, orders.PlaceOrderInput{SessionID: session.ID, Trigger: "confirm", Actor: actor})
		if err != nil {
			return nil, err
		}
		return &ConfirmResult{Order: order, Created: created}, nil
	}

	if session.PaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "checkout session has no payment intent")
	}
	intentID := strings.TrimSpace(input.PaymentIntentID)
	if intentID == "" {
		intentID = *session.PaymentIntentID
	}
	if intentID != *session.PaymentIntentID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent does not belong to this checkout session")
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !intent.Succeeded() {
		return nil, pkgerrors.Transition("payment_intent", intent.Status, "succeeded")
	}
	if intent.AmountCents != session.TotalCents || intent.Currency != session.Currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount does not match checkout session").
			WithDetails(map[string]any{
				"expected_cents":    session.TotalCents,
				"expected_currency": session.Currency,
				"paid_cents":        intent.AmountCents,
				"paid_currency":     intent.Currency,
			})
	}

	order, created, err := s.orders.PlaceOrder(ctx, orders.PlaceOrderInput{
		SessionID: session.ID,
		Payment: orders.PaymentReference{
			Provider:      "stripe",
			TransactionID: intent.ID,
			AmountCents:   intent.AmountCents,
			Currency:      intent.Currency,
		},
		Trigger: "confirm",
		Actor:   actor,
	})
	if err != nil {
		return nil, err
	}
	return &ConfirmResult{Order: order, Created: created}, nil
}

// ExpireStale expires open sessions older than the configured TTL.
func (s *service) ExpireStale(ctx context.Context, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	n, err := s.repo.ExpireOpenBefore(ctx, now.Add(-s.cfg.SessionTTL), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire checkout sessions")
	}
	return n, nil
}

// price resolves each requested line against the catalog and stock, in request order.
func (s *service) price(ctx context.Context, requested []pkgcheckout.LineRequest) (types.CartLines, error) {
	ids := make([]uuid.UUID, 0, len(requested))
	for _, line := range requested {
		ids = append(ids, line.ProductID)
	}
	catalog, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	stock, found, err := s.availability.GetAvailabilities(ctx, ids)
	if err != nil {
		return nil, err
	}

	var violations []pkgcheckout.LineViolation
	lines := make(types.CartLines, 0, len(requested))
	for _, line := range requested {
		product, ok := catalog[line.ProductID]
		switch {
		case !ok:
			violations = append(violations, pkgcheckout.LineViolation{ProductID: line.ProductID, Reason: pkgcheckout.ReasonUnknownProduct})
			continue
		case !product.IsActive:
			violations = append(violations, pkgcheckout.LineViolation{ProductID: line.ProductID, Reason: pkgcheckout.ReasonInactive})
			continue
		case string(product.Currency) != s.cfg.Currency:
			violations = append(violations, pkgcheckout.LineViolation{ProductID: line.ProductID, Reason: pkgcheckout.ReasonCurrency})
			continue
		}
		if found[line.ProductID] && !stock[line.ProductID].IsAvailable {
			violations = append(violations, pkgcheckout.LineViolation{ProductID: line.ProductID, Reason: pkgcheckout.ReasonUnavailable, Quantity: line.Quantity})
			continue
		}
		lines = append(lines, types.CartLine{
			ProductID:      product.ID,
			SKU:            product.SKU,
			Name:           product.Name,
			UnitPriceCents: product.PriceCents,
			Quantity:       line.Quantity,
		})
	}
	if err := pkgcheckout.ViolationsError(violations); err != nil {
		return nil, err
	}
	return lines, nil
}

// intentFor creates the session's intent on first use and retrieves it afterwards.
func (s *service) intentFor(ctx context.Context, session *models.CheckoutSession) (*payments.Intent, error) {
	if session.PaymentIntentID != nil && *session.PaymentIntentID != "" {
		return s.gateway.RetrieveIntent(ctx, *session.PaymentIntentID)
	}
	intent, err := s.gateway.CreateIntent(ctx, session, map[string]string{"cart_hash": session.CartHash})
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPaymentIntent(ctx, session.ID, intent.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment intent")
	}
	session.PaymentIntentID = &intent.ID
	return intent, nil
}

func (s *service) logBegin(ctx context.Context, session *models.CheckoutSession, reused bool) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithCheckoutSessionID(ctx, session.ID.String())
	ctx = s.logg.WithFields(ctx, map[string]any{
		"total_cents": session.TotalCents,
		"reused":      reused,
	})
	s.logg.Info(ctx, "checkout session ready")
}

func purchaserOf(user *auth.CurrentUser, email string) (Purchaser, error) {
	if user != nil && user.ID != uuid.Nil {
		id := user.ID
		return Purchaser{UserID: &id}, nil
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Purchaser{}, pkgerrors.New(pkgerrors.CodeValidation, "email is required for guest checkout")
	}
	return Purchaser{GuestEmail: email}, nil
}

// owns allows admins, the signed-in owner, and anyone holding a guest session id.
func owns(user *auth.CurrentUser, session *models.CheckoutSession) bool {
	if session.UserID == nil {
		return true
	}
	if user == nil {
		return false
	}
	return user.IsAdmin || user.ID == *session.UserID
}

func sameTotals(session *models.CheckoutSession, totals pkgcheckout.Totals) bool {
	return session.SubtotalCents == totals.SubtotalCents &&
		session.TaxCents == totals.TaxCents &&
		session.ShippingCents == totals.ShippingCents &&
		session.DiscountCents == totals.DiscountCents &&
		session.TotalCents == totals.TotalCents
}

func normalized(addr *types.Address) *types.Address {
	if addr == nil {
		return nil
	}
	out := addr.Normalize()
	return &out
}
