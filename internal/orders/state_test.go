package orders

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestStatusEdges(t *testing.T) {
	allowed := [][2]enums.OrderStatus{
		{enums.OrderStatusPending, enums.OrderStatusProcessing},
		{enums.OrderStatusPending, enums.OrderStatusCancelled},
		{enums.OrderStatusProcessing, enums.OrderStatusShipped},
		{enums.OrderStatusProcessing, enums.OrderStatusCancelled},
		{enums.OrderStatusShipped, enums.OrderStatusDelivered},
	}
	for _, edge := range allowed {
		require.True(t, CanTransitionStatus(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}

	denied := [][2]enums.OrderStatus{
		{enums.OrderStatusShipped, enums.OrderStatusCancelled},
		{enums.OrderStatusShipped, enums.OrderStatusPending},
		{enums.OrderStatusDelivered, enums.OrderStatusProcessing},
		{enums.OrderStatusCancelled, enums.OrderStatusProcessing},
		{enums.OrderStatusPending, enums.OrderStatusDelivered},
		{enums.OrderStatusProcessing, enums.OrderStatusProcessing},
	}
	for _, edge := range denied {
		require.False(t, CanTransitionStatus(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}
}

func TestPaymentEdges(t *testing.T) {
	require.True(t, CanTransitionPayment(enums.PaymentStatusPending, enums.PaymentStatusAuthorized))
	require.True(t, CanTransitionPayment(enums.PaymentStatusAuthorized, enums.PaymentStatusPaid))
	require.True(t, CanTransitionPayment(enums.PaymentStatusPaid, enums.PaymentStatusRefunded))
	for _, from := range []enums.PaymentStatus{
		enums.PaymentStatusPending,
		enums.PaymentStatusAuthorized,
		enums.PaymentStatusPaid,
		enums.PaymentStatusRefunded,
	} {
		require.True(t, CanTransitionPayment(from, enums.PaymentStatusVoided), string(from))
	}
	require.False(t, CanTransitionPayment(enums.PaymentStatusVoided, enums.PaymentStatusVoided))
	require.False(t, CanTransitionPayment(enums.PaymentStatusPending, enums.PaymentStatusPaid))
	require.False(t, CanTransitionPayment(enums.PaymentStatusRefunded, enums.PaymentStatusPaid))
	require.False(t, CanTransitionPayment(enums.PaymentStatusPaid, enums.PaymentStatusPending))
	require.False(t, CanTransitionPayment(enums.PaymentStatusPaid, enums.PaymentStatusAuthorized))
}

func TestBackwardEdgesAreInvalidTransitions(t *testing.T) {
	require.True(t, pkgerrors.IsCode(checkStatus(enums.OrderStatusShipped, enums.OrderStatusPending), pkgerrors.CodeInvalidTransition))
	require.True(t, pkgerrors.IsCode(checkPayment(enums.PaymentStatusPaid, enums.PaymentStatusPending), pkgerrors.CodeInvalidTransition))
}

func TestCheckStatusReturnsTransitionDetails(t *testing.T) {
	err := checkStatus(enums.OrderStatusDelivered, enums.OrderStatusCancelled)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInvalidTransition, typed.Code())
	require.Equal(t, map[string]string{"field": "status", "from": "delivered", "to": "cancelled"}, typed.Details())

	err = checkStatus(enums.OrderStatusPending, enums.OrderStatus("lost"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPaymentPathTo(t *testing.T) {
	require.Equal(t,
		[]enums.PaymentStatus{enums.PaymentStatusAuthorized, enums.PaymentStatusPaid},
		paymentPathTo(enums.PaymentStatusPending, enums.PaymentStatusPaid))
	require.Equal(t,
		[]enums.PaymentStatus{enums.PaymentStatusPaid},
		paymentPathTo(enums.PaymentStatusAuthorized, enums.PaymentStatusPaid))
	require.Empty(t, paymentPathTo(enums.PaymentStatusPaid, enums.PaymentStatusPaid))
	require.Nil(t, paymentPathTo(enums.PaymentStatusPaid, enums.PaymentStatusAuthorized))
	require.Nil(t, paymentPathTo(enums.PaymentStatusRefunded, enums.PaymentStatusPaid))
}

func TestDeriveFulfillment(t *testing.T) {
	cases := []struct {
		name  string
		items []ItemProgress
		want  enums.FulfillmentStatus
	}{
		{"no items", nil, enums.FulfillmentUnfulfilled},
		{"nothing shipped", []ItemProgress{{2, 0}, {1, 0}}, enums.FulfillmentUnfulfilled},
		{"one partial", []ItemProgress{{2, 1}, {1, 0}}, enums.FulfillmentPartial},
		{"one complete", []ItemProgress{{2, 2}, {1, 0}}, enums.FulfillmentPartial},
		{"all complete", []ItemProgress{{2, 2}, {1, 1}}, enums.FulfillmentFulfilled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveFulfillment(tc.items))
		})
	}
}

func TestNumberGeneratorMonotonic(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := NewNumberGenerator("sf", func() time.Time { return fixed })

	first := gen.Next()
	second := gen.Next()
	require.NotEqual(t, first, second)

	partsA := strings.Split(first, "-")
	partsB := strings.Split(second, "-")
	require.Len(t, partsA, 3)
	require.Equal(t, "SF", partsA[0])
	require.Len(t, partsA[2], 4)
	require.Less(t, partsA[1], partsB[1])
}
