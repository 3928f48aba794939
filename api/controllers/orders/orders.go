package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxNoteRunes = 500

var errServiceUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable")

// List returns the caller's orders newest first; admins see every order.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, err := requireUser(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		page, err := svc.ListOrders(ctx, *user, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newListResponse(page))
	}
}

// Detail returns one order with its status history and payment ledger.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, err := requireUser(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		detail, err := svc.GetOrder(ctx, orderID, *user)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDetailResponse(detail))
	}
}

func requireUser(r *http.Request, svc internalorders.Service) (*auth.CurrentUser, error) {
	if svc == nil {
		return nil, errServiceUnavailable
	}
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return user, nil
}

// adminAction is an admin mutation on one order; actor names the caller for
// the status history.
type adminAction func(r *http.Request, orderID uuid.UUID, actor string) (*models.Order, error)

// adminOrderHandler parses {orderId}, runs action and renders the order.
func adminOrderHandler(svc internalorders.Service, logg *logger.Logger, action adminAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, errServiceUnavailable)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		order, err := action(r.WithContext(ctx), orderID, adminActor(r))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewOrderResponse(order))
	}
}

func adminActor(r *http.Request) string {
	if user := middleware.UserFromContext(r.Context()); user != nil {
		return "admin:" + user.ID.String()
	}
	return "admin"
}

type statusRequest struct {
	Status string  `json:"status" validate:"required,notblank"`
	Note   *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// TransitionStatus moves the order along the fulfillment lifecycle.
func TransitionStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return adminOrderHandler(svc, logg, func(r *http.Request, orderID uuid.UUID, actor string) (*models.Order, error) {
		var payload statusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		var note *string
		if payload.Note != nil {
			if cleaned := validators.CleanText(*payload.Note, maxNoteRunes); cleaned != "" {
				note = &cleaned
			}
		}
		to := enums.OrderStatus(strings.ToLower(strings.TrimSpace(payload.Status)))
		return svc.TransitionStatus(r.Context(), orderID, to, actor, note)
	})
}

// VoidPayment marks the order's payment voided.
func VoidPayment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return adminOrderHandler(svc, logg, func(r *http.Request, orderID uuid.UUID, actor string) (*models.Order, error) {
		return svc.VoidPayment(r.Context(), orderID, actor)
	})
}

// Fulfill records shipped quantity for one item, or every item when the
// request has no body.
func Fulfill(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return adminOrderHandler(svc, logg, func(r *http.Request, orderID uuid.UUID, actor string) (*models.Order, error) {
		var payload internalorders.FulfillInput
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				return nil, err
			}
		}
		return svc.FulfillItem(r.Context(), orderID, payload, actor)
	})
}

// RecomputeFulfillment re-derives the stored fulfillment status from the items.
func RecomputeFulfillment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return adminOrderHandler(svc, logg, func(r *http.Request, orderID uuid.UUID, _ string) (*models.Order, error) {
		return svc.RecomputeFulfillment(r.Context(), orderID)
	})
}
