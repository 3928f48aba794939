package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
)

type countingLimiter struct {
	counts map[string]int64
	err    error
}

func (c *countingLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if c.err != nil {
		return false, 0, c.err
	}
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[scope]++
	return c.counts[scope] <= limit, c.counts[scope], nil
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	limiter := &countingLimiter{}
	handler := RateLimit("checkout", 2, time.Minute, limiter, nil)(okHandler(nil))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
		if i == 2 && resp.Header().Get("Retry-After") != "60" {
			t.Fatalf("expected Retry-After 60, got %q", resp.Header().Get("Retry-After"))
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if _, ok := limiter.counts["checkout:ip:10.0.0.1"]; !ok {
		t.Fatalf("expected ip scope, got %v", limiter.counts)
	}
}

func TestRateLimitScopesAuthenticatedUsers(t *testing.T) {
	limiter := &countingLimiter{}
	handler := RateLimit("checkout", 1, time.Minute, limiter, nil)(okHandler(nil))

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req = req.WithContext(WithUser(req.Context(), auth.CurrentUser{ID: userID}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if limiter.counts["checkout:user:"+userID.String()] != 1 {
		t.Fatalf("expected user scope, got %v", limiter.counts)
	}
}

func TestRateLimitStoreFailure(t *testing.T) {
	handler := RateLimit("checkout", 1, time.Minute, &countingLimiter{err: errors.New("redis down")}, nil)(okHandler(nil))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected dependency failure status, got %d", resp.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimit("checkout", 0, time.Minute, &countingLimiter{err: errors.New("unused")}, nil)(okHandler(nil))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", resp.Code)
	}
}
