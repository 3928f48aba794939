package products

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestFindByIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))

	a := &models.Product{SKU: "TEE-S", Name: "Tee", PriceCents: 1000, Currency: enums.CurrencyUSD, IsActive: true}
	b := &models.Product{SKU: "MUG", Name: "Mug", PriceCents: 800, Currency: enums.CurrencyUSD}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	found, err := repo.FindByIDs(ctx, []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.True(t, found[a.ID].IsActive)
	require.False(t, found[b.ID].IsActive)

	empty, err := repo.FindByIDs(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestFindByIDNotFound(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	_, err := repo.FindByID(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
