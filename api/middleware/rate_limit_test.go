package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type counterStore struct {
	counts map[string]int64
}

func (c *counterStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[scope]++
	return c.counts[scope] <= limit, c.counts[scope], nil
}

func TestRateLimitBlocksPerUser(t *testing.T) {
	store := &counterStore{}
	policy := NewRateLimitPolicy("Payments", time.Minute, 100, 2)
	handler := RateLimit(policy, store, nil)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/1/capture", nil)
		req = req.WithContext(WithUserID(req.Context(), "u1"))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("expected first two requests allowed, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third request limited, got %d", codes[2])
	}
	if store.counts["user:payments:u1"] != 3 {
		t.Fatalf("expected user counter scope, got %v", store.counts)
	}
}

func TestRateLimitBlocksPerIP(t *testing.T) {
	store := &counterStore{}
	handler := RateLimit(NewRateLimitPolicy("payments", time.Minute, 1, 0), store, nil)(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/", nil)
	first.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, first)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/", nil)
	second.Header.Set("X-Forwarded-For", "203.0.113.9")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, second)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}

func TestRateLimitDisabledPolicyIsNoop(t *testing.T) {
	store := &counterStore{}
	handler := RateLimit(NewRateLimitPolicy("payments", 0, 1, 1), store, nil)(okHandler())

	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", resp.Code)
		}
	}
	if len(store.counts) != 0 {
		t.Fatalf("expected no counters, got %v", store.counts)
	}
}
