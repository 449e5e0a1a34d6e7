package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/incidents", http.NoBody)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	h := rl.Handler(okHandler())

	for i := range 10 {
		if rec := hit(h, "192.168.1.1:4000"); rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	var rejected []string
	rl := NewRateLimiter(10, 5, WithRejectHook(func(key string) { rejected = append(rejected, key) }))
	h := rl.Handler(okHandler())

	for range 5 {
		hit(h, "192.168.1.1:4000")
	}
	rec := hit(h, "192.168.1.1:4001")

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if len(rejected) != 1 || rejected[0] != "192.168.1.1" {
		t.Errorf("expected reject hook for 192.168.1.1, got %v", rejected)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler())

	if rec := hit(h, "10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := hit(h, "10.0.0.1:1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited: %d", rec.Code)
	}
	now = now.Add(time.Second)
	if rec := hit(h, "10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("after refill: %d", rec.Code)
	}
}

func TestRateLimiterPerClient(t *testing.T) {
	h := NewRateLimiter(10, 2).Handler(okHandler())

	hit(h, "10.0.0.1:1")
	hit(h, "10.0.0.1:1")

	if rec := hit(h, "10.0.0.1:1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("10.0.0.1: expected 429, got %d", rec.Code)
	}
	if rec := hit(h, "10.0.0.2:1"); rec.Code != http.StatusOK {
		t.Errorf("10.0.0.2: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterCapsClients(t *testing.T) {
	h := NewRateLimiter(10, 10, WithMaxClients(1)).Handler(okHandler())

	hit(h, "10.0.0.1:1")
	if rec := hit(h, "10.0.0.2:1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected new client rejected at capacity, got %d", rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(10, 10)
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler())

	hit(h, "10.0.0.1:1")
	now = now.Add(time.Minute)
	hit(h, "10.0.0.2:1")

	rl.cleanup(30 * time.Second)
	if rl.Len() != 1 {
		t.Fatalf("expected 1 bucket after cleanup, got %d", rl.Len())
	}
}
