package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// Storefront groups the counters emitted by checkout, inventory, webhooks and HTTP.
// A nil *Storefront is valid and records nothing.
type Storefront struct {
	checkoutSessions *prometheus.CounterVec
	ordersPlaced     *prometheus.CounterVec
	inventorySync    *prometheus.CounterVec
	adjustRetries    prometheus.Counter
	amountMismatch   prometheus.Counter
	webhookEvents    *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func NewStorefront(reg prometheus.Registerer) *Storefront {
	if reg == nil {
		return nil
	}
	m := &Storefront{
		checkoutSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Checkout sessions by outcome (created, reused).",
		}, []string{"outcome"}),
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders created, by the path that finalized them.",
		}, []string{"trigger"}),
		inventorySync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_sync_lines_total",
			Help:      "Order lines processed by inventory sync, by status.",
		}, []string{"status"}),
		adjustRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_adjust_retries_total",
			Help:      "Inventory transactions retried after a serialization conflict.",
		}),
		amountMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_amount_mismatches_total",
			Help:      "Captured payments whose amount or currency differs from the checkout session.",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.checkoutSessions,
		m.ordersPlaced,
		m.inventorySync,
		m.adjustRetries,
		m.amountMismatch,
		m.webhookEvents,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Storefront) CheckoutSession(outcome string) {
	if m == nil {
		return
	}
	m.checkoutSessions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Storefront) OrderPlaced(trigger string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(normalizeLabel(trigger)).Inc()
}

func (m *Storefront) InventorySyncLine(status string) {
	if m == nil {
		return
	}
	m.inventorySync.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Storefront) InventoryAdjustRetry() {
	if m == nil {
		return
	}
	m.adjustRetries.Inc()
}

func (m *Storefront) PaymentAmountMismatch() {
	if m == nil {
		return
	}
	m.amountMismatch.Inc()
}

func (m *Storefront) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// HTTPRequest records one served request. route should be the chi pattern, not the raw path.
func (m *Storefront) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	route = normalizeLabel(route)
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
