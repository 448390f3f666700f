package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_Window(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 2})
	defer rl.Stop()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests must pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request in the window must be refused")
	}
	if !rl.Allow("b") {
		t.Fatal("clients are limited independently")
	}
	if got := rl.RetryAfter("a"); got != time.Minute {
		t.Errorf("RetryAfter = %v", got)
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("window did not reset")
	}

	m := rl.GetMetrics()
	if m.TotalHits != 1 || m.ClientCount != 2 {
		t.Errorf("unexpected metrics %+v", m)
	}

	now = now.Add(20 * time.Minute)
	rl.cleanupStaleEntries()
	if rl.GetMetrics().ClientCount != 0 {
		t.Errorf("stale clients kept")
	}
}

func TestLimiter_MiddlewareSkipsReads(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1})
	defer rl.Stop()
	h := rl.Middleware(func(*http.Request) string { return "x" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	for range 3 {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/state", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("GET limited: %d", rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/income", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("first POST: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/income", nil))
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second POST: %d %q", rr.Code, rr.Header().Get("Retry-After"))
	}
}
