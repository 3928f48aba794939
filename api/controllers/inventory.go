package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type availabilityReader interface {
	GetAvailability(ctx context.Context, productID uuid.UUID) (inventory.Availability, error)
}

type inventoryWriter interface {
	UpsertRecord(ctx context.Context, productID uuid.UUID, settings inventory.RecordSettings, actor string) (*models.InventoryRecord, error)
	Adjust(ctx context.Context, productID uuid.UUID, delta int, actor string) (*models.InventoryRecord, error)
}

// InventoryAvailability reports sellability for a product. Unknown products
// answer with the unavailable placeholder rather than 404.
func InventoryAvailability(svc availabilityReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		availability, err := svc.GetAvailability(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability)
	}
}

// AdminUpsertInventory creates or replaces a product's stock record.
func AdminUpsertInventory(svc inventoryWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload inventory.RecordSettings
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.UpsertRecord(r.Context(), productID, payload, inventoryActor(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newInventoryResponse(record))
	}
}

type adjustRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// AdminAdjustInventory applies a signed delta to the stock counter.
func AdminAdjustInventory(svc inventoryWriter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload adjustRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Adjust(r.Context(), productID, payload.Delta, inventoryActor(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newInventoryResponse(record))
	}
}

type inventoryResponse struct {
	ProductID         uuid.UUID              `json:"product_id"`
	Quantity          int                    `json:"quantity"`
	LowStockThreshold int                    `json:"low_stock_threshold"`
	TrackInventory    bool                   `json:"track_inventory"`
	AllowBackorder    bool                   `json:"allow_backorder"`
	Availability      inventory.Availability `json:"availability"`
}

func newInventoryResponse(record *models.InventoryRecord) inventoryResponse {
	if record == nil {
		return inventoryResponse{}
	}
	return inventoryResponse{
		ProductID:         record.ProductID,
		Quantity:          record.Quantity,
		LowStockThreshold: record.LowStockThreshold,
		TrackInventory:    record.TrackInventory,
		AllowBackorder:    record.AllowBackorder,
		Availability:      inventory.AvailabilityOf(record.ProductID, record),
	}
}

func inventoryActor(r *http.Request) string {
	if user := middleware.UserFromContext(r.Context()); user != nil {
		return "admin:" + user.ID.String()
	}
	return "admin"
}
