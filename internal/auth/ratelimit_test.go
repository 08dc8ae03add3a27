package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToBurst(t *testing.T) {
	rl := NewRateLimiter(10, time.Minute, 3)
	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("client-a")
		if !ok {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}
	ok, remaining := rl.Allow("client-a")
	if ok {
		t.Fatal("4th request should be rejected once burst is exhausted")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

func TestRateLimiterDefaultsBurstToRate(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute, 0)
	if rl.burst != 5 {
		t.Errorf("burst = %d, want 5 (defaulted to rate)", rl.burst)
	}
}

func TestRateLimiterTracksClientsIndependently(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, 1)
	okA, _ := rl.Allow("client-a")
	okB, _ := rl.Allow("client-b")
	if !okA || !okB {
		t.Fatal("distinct clients should each get their own bucket")
	}
	okA2, _ := rl.Allow("client-a")
	if okA2 {
		t.Fatal("client-a should be rate limited on its second request")
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond, 1)
	ok, _ := rl.Allow("client-a")
	if !ok {
		t.Fatal("first request should be allowed")
	}
	ok, _ = rl.Allow("client-a")
	if ok {
		t.Fatal("second immediate request should be rejected")
	}
	time.Sleep(25 * time.Millisecond)
	ok, _ = rl.Allow("client-a")
	if !ok {
		t.Fatal("request after refill window should be allowed")
	}
}

func TestRateLimitMiddlewareSetsHeaderAndBlocks(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, 1)
	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec2.Code)
	}
	if rec2.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header on a 429 response")
	}
}

func TestClientKeyPrefersXForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientKey(req); got != "203.0.113.9" {
		t.Errorf("clientKey() = %q, want 203.0.113.9", got)
	}
}

func TestClientKeyFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := clientKey(req); got != "10.0.0.1" {
		t.Errorf("clientKey() = %q, want 10.0.0.1", got)
	}
}
