package checkout

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestValidateLines(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	err := ValidateLines(nil, 10)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.NoError(t, ValidateLines([]LineRequest{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 10}}, 10))

	err = ValidateLines([]LineRequest{
		{ProductID: a, Quantity: 0},
		{ProductID: b, Quantity: 11},
		{ProductID: b, Quantity: 1},
	}, 10)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details := typed.Details().(map[string]any)
	violations := details["violations"].([]LineViolation)
	require.Len(t, violations, 3)
	require.Equal(t, ReasonNonPositiveQty, violations[0].Reason)
	require.Equal(t, ReasonQtyTooLarge, violations[1].Reason)
	require.Equal(t, ReasonDuplicate, violations[2].Reason)
}

func TestCartHashIgnoresOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	first := CartHash([]LineRequest{{ProductID: a, Quantity: 1}, {ProductID: b, Quantity: 2}})
	second := CartHash([]LineRequest{{ProductID: b, Quantity: 2}, {ProductID: a, Quantity: 1}})
	third := CartHash([]LineRequest{{ProductID: a, Quantity: 2}, {ProductID: b, Quantity: 2}})
	require.Equal(t, first, second)
	require.NotEqual(t, first, third)
}

func TestComputeTotals(t *testing.T) {
	cfg := config.CheckoutConfig{TaxRateBps: 825, FlatShippingCents: 500, FreeShippingThreshold: 5000}

	totals := ComputeTotals(2000, cfg)
	require.Equal(t, Totals{SubtotalCents: 2000, TaxCents: 165, ShippingCents: 500, TotalCents: 2665}, totals)

	free := ComputeTotals(5000, cfg)
	require.Zero(t, free.ShippingCents)
	require.Equal(t, int64(5000+412), free.TotalCents)

	flat := ComputeTotals(2000, config.CheckoutConfig{})
	require.Equal(t, int64(2000), flat.TotalCents)
}
