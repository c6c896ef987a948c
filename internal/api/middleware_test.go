package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authRequest(t *testing.T, key string, configure func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	handler := APIKeyAuth(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/content", nil)
	configure(req)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyAuthMissingKey(t *testing.T) {
	rec := authRequest(t, "sekret", func(r *http.Request) {})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAPIKeyAuthWrongKey(t *testing.T) {
	rec := authRequest(t, "sekret", func(r *http.Request) {
		r.Header.Set("X-API-Key", "wrong")
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestAPIKeyAuthHeaderKey(t *testing.T) {
	rec := authRequest(t, "sekret", func(r *http.Request) {
		r.Header.Set("X-API-Key", "sekret")
	})
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected pass-through, got %d", rec.Code)
	}
}

func TestAPIKeyAuthBearerKey(t *testing.T) {
	rec := authRequest(t, "sekret", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer sekret")
	})
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected pass-through, got %d", rec.Code)
	}
}
