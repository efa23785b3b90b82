package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    2,
		AuthRate:        rate.Limit(1),
		AuthBurst:       2,
		CleanupInterval: time.Hour,
	}
}

func TestNewRateLimiterConfig_FromPerMinuteLimits(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 10)

	if cfg.GeneralRate != rate.Limit(2.0) {
		t.Errorf("GeneralRate = %v, want 2.0 (120/min)", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.AuthRate != rate.Limit(float64(10)/60.0) {
		t.Errorf("AuthRate = %v, want 10/60", cfg.AuthRate)
	}
	if cfg.AuthBurst != 10 {
		t.Errorf("AuthBurst = %d, want 10", cfg.AuthBurst)
	}
	if cfg.CleanupInterval != DefaultRateLimiterConfig().CleanupInterval {
		t.Errorf("CleanupInterval = %v, want default", cfg.CleanupInterval)
	}
}

func TestNewRateLimiterConfig_NonPositiveKeepsDefaults(t *testing.T) {
	def := DefaultRateLimiterConfig()
	cfg := NewRateLimiterConfig(0, -1)

	if cfg.GeneralRate != def.GeneralRate || cfg.GeneralBurst != def.GeneralBurst {
		t.Errorf("general = (%v, %d), want defaults (%v, %d)",
			cfg.GeneralRate, cfg.GeneralBurst, def.GeneralRate, def.GeneralBurst)
	}
	if cfg.AuthRate != def.AuthRate || cfg.AuthBurst != def.AuthBurst {
		t.Errorf("auth = (%v, %d), want defaults (%v, %d)",
			cfg.AuthRate, cfg.AuthBurst, def.AuthRate, def.AuthBurst)
	}
}

func TestRateLimiter_General_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	mw := rl.GeneralMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	ctx := ContextWithIdentity(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "user-1", "x@example.com")

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/notes", nil).WithContext(ctx)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	// バースト超過で429
	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimiter_General_SeparatePerUser(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	mw := rl.GeneralMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// user-1の枠を使い切る
	ctx1 := ContextWithIdentity(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "user-1", "a@example.com")
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/notes", nil).WithContext(ctx1)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	// user-2は影響を受けない
	ctx2 := ContextWithIdentity(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "user-2", "b@example.com")
	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil).WithContext(ctx2)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_General_MissingUser_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	mw := rl.GeneralMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRateLimiter_AuthEndpoint_KeyedByClientIP(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	mw := rl.AuthEndpointMiddleware()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 同一IPからバースト超過まで
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/register", nil)
		req.RemoteAddr = "203.0.113.1:50000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/register", nil)
	req.RemoteAddr = "203.0.113.1:50001"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("same IP: status = %d, want 429", w.Code)
	}

	// 別IPは独立
	req = httptest.NewRequest(http.MethodPost, "/auth/register", nil)
	req.RemoteAddr = "203.0.113.2:50000"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("different IP: status = %d, want 200", w.Code)
	}
}

func TestClientIP_PrefersXForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if ip := clientIP(req); ip != "203.0.113.7" {
		t.Errorf("clientIP = %q, want 203.0.113.7", ip)
	}
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.5:9999"

	if ip := clientIP(req); ip != "192.0.2.5" {
		t.Errorf("clientIP = %q, want 192.0.2.5", ip)
	}
}
