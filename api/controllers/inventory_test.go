package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type stubInventory struct {
	settings inventory.RecordSettings
	delta    int
	actor    string
	record   *models.InventoryRecord
	err      error
}

func (s *stubInventory) GetAvailability(_ context.Context, productID uuid.UUID) (inventory.Availability, error) {
	return inventory.AvailabilityOf(productID, s.record), s.err
}

func (s *stubInventory) UpsertRecord(_ context.Context, productID uuid.UUID, settings inventory.RecordSettings, actor string) (*models.InventoryRecord, error) {
	s.settings = settings
	s.actor = actor
	return &models.InventoryRecord{
		ProductID:         productID,
		Quantity:          settings.Quantity,
		LowStockThreshold: settings.LowStockThreshold,
		TrackInventory:    settings.TrackInventory,
		AllowBackorder:    settings.AllowBackorder,
	}, s.err
}

func (s *stubInventory) Adjust(_ context.Context, productID uuid.UUID, delta int, actor string) (*models.InventoryRecord, error) {
	s.delta = delta
	s.actor = actor
	return &models.InventoryRecord{ProductID: productID, Quantity: 3 + delta, TrackInventory: true, LowStockThreshold: 2}, s.err
}

func TestInventoryAvailabilityUnknownProduct(t *testing.T) {
	id := uuid.New()
	rec := serve(http.MethodGet, "/api/v1/inventory/{productId}", "/api/v1/inventory/"+id.String(), "", InventoryAvailability(&stubInventory{}, nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data inventory.Availability `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, id, body.Data.ProductID)
	require.False(t, body.Data.IsAvailable)
	require.True(t, body.Data.IsOutOfStock)
}

func TestAdminUpsertInventory(t *testing.T) {
	svc := &stubInventory{}
	admin := &auth.CurrentUser{ID: uuid.New(), IsAdmin: true}
	id := uuid.New()

	rec := serve(http.MethodPut, "/api/admin/v1/inventory/{productId}", "/api/admin/v1/inventory/"+id.String(),
		`{"quantity":5,"low_stock_threshold":2,"track_inventory":true}`, AdminUpsertInventory(svc, nil), admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 5, svc.settings.Quantity)
	require.Equal(t, "admin:"+admin.ID.String(), svc.actor)

	var body struct {
		Data struct {
			Quantity     int                    `json:"quantity"`
			Availability inventory.Availability `json:"availability"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 5, body.Data.Quantity)
	require.True(t, body.Data.Availability.IsAvailable)

	rec = serve(http.MethodPut, "/api/admin/v1/inventory/{productId}", "/api/admin/v1/inventory/"+id.String(),
		`{"quantity":-1}`, AdminUpsertInventory(svc, nil), admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAdjustInventory(t *testing.T) {
	svc := &stubInventory{}
	admin := &auth.CurrentUser{ID: uuid.New(), IsAdmin: true}
	id := uuid.New()

	rec := serve(http.MethodPost, "/api/admin/v1/inventory/{productId}/adjust", "/api/admin/v1/inventory/"+id.String()+"/adjust",
		`{"delta":-2}`, AdminAdjustInventory(svc, nil), admin)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, -2, svc.delta)

	var body struct {
		Data struct {
			Quantity     int                    `json:"quantity"`
			Availability inventory.Availability `json:"availability"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Data.Quantity)
	require.True(t, body.Data.Availability.IsLowStock)

	rec = serve(http.MethodPost, "/api/admin/v1/inventory/{productId}/adjust", "/api/admin/v1/inventory/"+id.String()+"/adjust",
		`{"delta":0}`, AdminAdjustInventory(svc, nil), admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
