package orders

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var statusEdges = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
}

var paymentEdges = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending:    {enums.PaymentStatusAuthorized, enums.PaymentStatusVoided},
	enums.PaymentStatusAuthorized: {enums.PaymentStatusPaid, enums.PaymentStatusVoided},
	enums.PaymentStatusPaid:       {enums.PaymentStatusRefunded, enums.PaymentStatusVoided},
	enums.PaymentStatusRefunded:   {enums.PaymentStatusVoided},
}

// CanTransitionStatus reports whether the order status edge exists.
func CanTransitionStatus(from, to enums.OrderStatus) bool {
	for _, next := range statusEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether the payment status edge exists.
func CanTransitionPayment(from, to enums.PaymentStatus) bool {
	for _, next := range paymentEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkStatus(from, to enums.OrderStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown order status "+string(to))
	}
	if !CanTransitionStatus(from, to) {
		return pkgerrors.Transition(string(enums.StatusFieldStatus), string(from), string(to))
	}
	return nil
}

func checkPayment(from, to enums.PaymentStatus) error {
	if !CanTransitionPayment(from, to) {
		return pkgerrors.Transition(string(enums.StatusFieldPaymentStatus), string(from), string(to))
	}
	return nil
}

// paymentPathTo walks the payment edges forward from from to target along the
// capture path, returning the intermediate steps including target. It is empty
// when from already equals target and nil when target is not reachable.
func paymentPathTo(from, target enums.PaymentStatus) []enums.PaymentStatus {
	capture := []enums.PaymentStatus{
		enums.PaymentStatusPending,
		enums.PaymentStatusAuthorized,
		enums.PaymentStatusPaid,
	}
	if from == target {
		return []enums.PaymentStatus{}
	}
	start, end := -1, -1
	for i, status := range capture {
		if status == from {
			start = i
		}
		if status == target {
			end = i
		}
	}
	if start < 0 || end < 0 || end <= start {
		return nil
	}
	return capture[start+1 : end+1]
}

// DeriveFulfillment maps item progress onto the order-level status.
func DeriveFulfillment(items []ItemProgress) enums.FulfillmentStatus {
	if len(items) == 0 {
		return enums.FulfillmentUnfulfilled
	}
	var anyFulfilled, allComplete = false, true
	for _, item := range items {
		if item.Fulfilled > 0 {
			anyFulfilled = true
		}
		if item.Fulfilled < item.Quantity {
			allComplete = false
		}
	}
	switch {
	case allComplete:
		return enums.FulfillmentFulfilled
	case anyFulfilled:
		return enums.FulfillmentPartial
	default:
		return enums.FulfillmentUnfulfilled
	}
}

// ItemProgress is the (ordered, fulfilled) quantity pair of one order item.
type ItemProgress struct {
	Quantity  int
	Fulfilled int
}

func itemStatus(quantity, fulfilled int) enums.FulfillmentStatus {
	return DeriveFulfillment([]ItemProgress{{Quantity: quantity, Fulfilled: fulfilled}})
}
