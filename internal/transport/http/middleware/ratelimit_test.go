package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hrleave/internal/domain/auth"
)

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRateLimitUsesUserKeyBeforeIPFallback(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())
	user := auth.UserContext{UserID: "user-1", EmployeeID: "emp-1", RoleName: auth.RoleManager}

	first := httptest.NewRequest(http.MethodPost, "/api/v1/leave/requests/r1/approve", nil)
	first = first.WithContext(WithUser(first.Context(), user))
	first.RemoteAddr = "198.51.100.11:2222"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", firstRec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/leave/requests/r1/approve", nil)
	second = second.WithContext(WithUser(second.Context(), user))
	second.RemoteAddr = "198.51.100.12:3333"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled by user key, got %d", secondRec.Code)
	}
	if secondRec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent())

	first := httptest.NewRequest(http.MethodGet, "/api/v1/leave/types", nil)
	first.RemoteAddr = "203.0.113.10:4444"
	firstRec := httptest.NewRecorder()
	limited.ServeHTTP(firstRec, first)
	if firstRec.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", firstRec.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/api/v1/leave/types", nil)
	second.RemoteAddr = "203.0.113.10:5555"
	secondRec := httptest.NewRecorder()
	limited.ServeHTTP(secondRec, second)
	if secondRec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected same IP to be throttled, got %d", secondRec.Code)
	}
}

func TestSensitiveMutationRateLimitScopes(t *testing.T) {
	limited := SensitiveMutationRateLimit(2, time.Minute)(noContent())
	user := auth.UserContext{UserID: "hr-1", EmployeeID: "emp-9", RoleName: auth.RoleHR}

	send := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req = req.WithContext(WithUser(req.Context(), user))
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(http.MethodPost, "/api/v1/leave/jobs/accrual"); code != http.StatusNoContent {
		t.Fatalf("expected first job trigger to pass, got %d", code)
	}
	if code := send(http.MethodPost, "/api/v1/leave/requests/r1/override"); code != http.StatusTooManyRequests {
		t.Fatalf("expected sensitive budget to be shared, got %d", code)
	}
	for i := 0; i < 3; i++ {
		if code := send(http.MethodPost, "/api/v1/leave/requests"); code != http.StatusNoContent {
			t.Fatalf("expected plain submit to bypass sensitive limiter, got %d", code)
		}
	}
	if code := send(http.MethodGet, "/api/v1/leave/jobs/runs"); code != http.StatusNoContent {
		t.Fatalf("expected reads to bypass sensitive limiter, got %d", code)
	}
}
