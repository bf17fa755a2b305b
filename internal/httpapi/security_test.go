package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	env := newTestAPI(t)
	res := env.do(t, http.MethodGet, "/healthz", "", nil)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	env := newTestAPI(t)
	res := env.do(t, http.MethodOptions, "/api/v1/sales", "", nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	env := newTestAPI(t)
	body := domain.LoginRequest{Email: testOwnerEmail, Password: "wrong-pass"}

	for i := 0; i < 6; i++ {
		res := env.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	res := httptest.NewRecorder()
	writeServiceError(res, errors.New("pq: relation \"sales\" does not exist"))

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "relation") {
		t.Fatalf("expected generic message, got %s", res.Body.String())
	}
}

func TestStatusForMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: sale x", store.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad", store.ErrInvalidRequest), http.StatusBadRequest},
		{&store.InsufficientStockError{MedicineID: "m", MedicineName: "M", Available: 1, Requested: 2}, http.StatusConflict},
		{store.ErrDuplicateBillNumber, http.StatusConflict},
		{store.ErrConflict, http.StatusConflict},
		{store.ErrAllocationExhausted, http.StatusServiceUnavailable},
		{service.ErrForbidden, http.StatusForbidden},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrUnknownPaymentMethod, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, expected %d", tc.err, got, tc.want)
		}
	}
}
