package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"touristid/internal/digitalid/models"
	"touristid/internal/digitalid/reconcile"
	"touristid/internal/digitalid/service"
	"touristid/internal/digitalid/store/accesslog"
	"touristid/internal/digitalid/store/credential"
	"touristid/internal/digitalid/store/event"
	jwttoken "touristid/internal/jwt_token"
	"touristid/internal/ledger/local"
	"touristid/pkg/platform/protect"
	"touristid/pkg/requestcontext"
)

// TestCredentialFlow drives issue, consent, access and loss through the router
// with in-memory stores and the local ledger.
func TestCredentialFlow(t *testing.T) {
	kr, err := protect.NewKeyring([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	stores := service.Stores{
		Credentials: credential.NewInMemory(),
		AccessLogs:  accesslog.NewInMemory(),
		Events:      event.NewInMemory(),
	}
	svc, err := service.New(service.NewInMemoryTx(stores), stores, local.New(kr), kr, reconcile.NewMemoryQueue())
	require.NoError(t, err)

	jwt := jwttoken.NewJWTService("flow-key", "touristid", "touristid-api")
	router := chi.NewRouter()
	New(svc, jwttoken.NewJWTServiceAdapter(jwt), slog.New(slog.NewTextHandler(io.Discard, nil))).Register(router)

	call := func(method, path string, p requestcontext.Principal, body any) (int, map[string]any) {
		t.Helper()
		var reader io.Reader = http.NoBody
		if body != nil {
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		tok, err := jwt.GenerateAccessToken(p, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
		return rec.Code, out
	}

	kiosk := requestcontext.Principal{ID: "kiosk-1", Role: string(models.RoleKiosk)}
	tourist := requestcontext.Principal{ID: "T-100", Role: string(models.RoleTourist)}
	police := requestcontext.Principal{ID: "officer-7", Role: string(models.RolePolice), Address: "0xpolice"}

	status, issued := call(http.MethodPost, "/digital-ids", kiosk, map[string]any{
		"touristId":         "T-100",
		"walletAddress":     "0xwallet",
		"personalData":      map[string]any{"name": "Ana Silva", "nationality": "PT"},
		"emergencyContacts": map[string]any{"primary": map[string]any{"name": "Rui", "phone": "+351900"}},
		"validityDays":      14,
	})
	require.Equal(t, http.StatusCreated, status, issued)
	id := issued["blockchainId"].(string)

	status, body := call(http.MethodPost, "/digital-ids/"+id+"/access", police, map[string]any{"accessReason": "traffic stop"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["error"])

	status, body = call(http.MethodPut, "/digital-ids/"+id+"/consent", tourist, map[string]any{
		"consentSettings": map[string]bool{"POLICE_ACCESS": true},
	})
	require.Equal(t, http.StatusOK, status, body)

	status, body = call(http.MethodPost, "/digital-ids/"+id+"/access", police, map[string]any{"accessReason": "traffic stop"})
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 1, body["accessCount"])

	status, body = call(http.MethodGet, "/digital-ids/"+id+"/access-logs", tourist, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["accessLogs"], 1)

	status, body = call(http.MethodPost, "/digital-ids/"+id+"/lost", tourist, map[string]any{"reason": "phone stolen"})
	require.Equal(t, http.StatusOK, status, body)
	replacement := body["replacementId"].(string)
	assert.NotEqual(t, id, replacement)

	status, body = call(http.MethodGet, "/digital-ids/"+id, tourist, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(models.StateLost), body["status"])
}
