package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"touristid/pkg/requestcontext"
)

type staticValidator map[string]requestcontext.Principal

func (v staticValidator) ValidateToken(token string) (requestcontext.Principal, error) {
	p, ok := v[token]
	if !ok {
		return requestcontext.Principal{}, errors.New("unknown token")
	}
	return p, nil
}

func TestRequireAuth(t *testing.T) {
	validator := staticValidator{"good": {ID: "officer-7", Role: "police"}}
	var seen requestcontext.Principal
	h := RequireAuth(validator, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.Caller(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"invalid token", "Bearer bad", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/digital-ids/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
	assert.Equal(t, "officer-7", seen.ID)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(slog.Default(), "admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/digital-ids/expire", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(requestcontext.WithCaller(req.Context(), requestcontext.Principal{ID: "k", Role: "kiosk"})))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"forbidden"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(requestcontext.WithCaller(req.Context(), requestcontext.Principal{ID: "a", Role: "admin"})))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
