package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStorefrontCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStorefront(reg)

	m.CheckoutSession("created")
	m.CheckoutSession("reused")
	m.CheckoutSession("reused")
	m.OrderPlaced("webhook")
	m.InventorySyncLine("applied")
	m.InventorySyncLine("")
	m.InventoryAdjustRetry()
	m.PaymentAmountMismatch()
	m.WebhookEvent("payment_intent.succeeded", "handled")
	m.HTTPRequest(http.MethodPost, "/api/v1/checkout", http.StatusCreated, 20*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.checkoutSessions.WithLabelValues("reused")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ordersPlaced.WithLabelValues("webhook")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.inventorySync.WithLabelValues("unknown")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.adjustRetries))
	require.Equal(t, 1.0, testutil.ToFloat64(m.amountMismatch))
	require.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("payment_intent.succeeded", "handled")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodPost, "/api/v1/checkout", "201")))
}

func TestNilStorefrontIsNoop(t *testing.T) {
	var m *Storefront
	require.Nil(t, NewStorefront(nil))
	m.CheckoutSession("created")
	m.OrderPlaced("confirm")
	m.InventorySyncLine("applied")
	m.InventoryAdjustRetry()
	m.PaymentAmountMismatch()
	m.WebhookEvent("x", "y")
	m.HTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
}
