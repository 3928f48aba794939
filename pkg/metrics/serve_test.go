package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewOutboxMetrics(reg).Event("orders-topic", OutboxPublished)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `storefront_outbox_events_total{outcome="published",topic="orders-topic"} 1`))
}

func TestHandlerLiveness(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(prometheus.NewRegistry()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestServeWithoutAddrIsNoop(t *testing.T) {
	require.NoError(t, Serve(context.Background(), "", prometheus.NewRegistry()))
}
