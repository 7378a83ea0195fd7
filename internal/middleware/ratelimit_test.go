package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/amiot/internal/model"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		AuthRate:        1,
		AuthBurst:       2,
		APIRate:         1,
		APIBurst:        3,
		CleanupInterval: time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_LimitsPerIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	// バースト2までは通る（ポートが異なっても同じIP）
	for i, remote := range []string{"203.0.113.1:1000", "203.0.113.1:2000"} {
		if w := send(remote); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := send("203.0.113.1:3000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", w.Header().Get("Retry-After"))
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeRateLimited {
		t.Errorf("code = %q, want %q", code, model.ErrCodeRateLimited)
	}

	// 別のIPは独立
	if w := send("198.51.100.7:1000"); w.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", w.Code)
	}
	if rl.AuthLimiterCount() != 2 {
		t.Errorf("AuthLimiterCount() = %d, want 2", rl.AuthLimiterCount())
	}
}

func TestAPIMiddleware_LimitsPerUser(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.APIMiddleware()(okHandler())

	send := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/news", nil)
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		if code := send("user-1"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, code)
		}
	}
	if code := send("user-1"); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", code)
	}
	if code := send("user-2"); code != http.StatusOK {
		t.Errorf("user-2 status = %d, want 200", code)
	}
}

func TestAPIMiddleware_RequiresUser(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/news", nil)
	w := httptest.NewRecorder()
	rl.APIMiddleware()(okHandler()).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	rl.api.allow("user-1")
	rl.auth.allow("203.0.113.1")

	rl.cleanup(time.Now())
	if rl.APILimiterCount() != 1 || rl.AuthLimiterCount() != 1 {
		t.Fatal("recent entries should be kept")
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.APILimiterCount() != 0 || rl.AuthLimiterCount() != 0 {
		t.Errorf("idle entries should be evicted: api=%d auth=%d", rl.APILimiterCount(), rl.AuthLimiterCount())
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.AuthBurst != 10 || cfg.APIBurst != 120 {
		t.Errorf("config = %+v", cfg)
	}
}
