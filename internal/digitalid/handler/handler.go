package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"touristid/internal/digitalid/models"
	dErrors "touristid/pkg/domain-errors"
	"touristid/pkg/platform/httputil"
	"touristid/pkg/platform/middleware/auth"
	"touristid/pkg/platform/middleware/metadata"
	request "touristid/pkg/platform/middleware/request"
	"touristid/pkg/platform/middleware/requesttime"
	"touristid/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/service_mock.go -package=mocks Service

// Service is the lifecycle manager as seen by HTTP.
type Service interface {
	Issue(ctx context.Context, caller models.Principal, req models.IssueRequest) (*models.IssueResult, error)
	Access(ctx context.Context, caller models.Principal, req models.AccessRequest) (*models.AccessResult, error)
	TriggerEmergencyAccess(ctx context.Context, caller models.Principal, req models.EmergencyAccessRequest) (*models.EmergencyAccessResult, error)
	UpdateConsent(ctx context.Context, caller models.Principal, req models.UpdateConsentRequest) (*models.ConsentResult, error)
	ReportLost(ctx context.Context, caller models.Principal, req models.ReportLostRequest) (*models.LostResult, error)
	Revoke(ctx context.Context, caller models.Principal, req models.RevokeRequest) (*models.RevokeResult, error)
	AutoExpire(ctx context.Context) (*models.ExpireResult, error)
	Get(ctx context.Context, id string) (*models.Summary, error)
	AccessHistory(ctx context.Context, caller models.Principal, id string, limit int) ([]*models.AccessLogEntry, error)
	Stats(ctx context.Context, since time.Time, top int) (*models.Stats, error)
	RecentEvents(ctx context.Context, eventType models.EventType, limit int) ([]*models.LifecycleEvent, error)
}

const (
	maxBodyBytes   = 1 << 20
	defaultTimeout = 30 * time.Second
	statsWindow    = 30 * 24 * time.Hour
)

// Handler serves the digital ID endpoints.
type Handler struct {
	service   Service
	validator auth.Validator
	logger    *slog.Logger
	timeout   time.Duration
}

func New(service Service, validator auth.Validator, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		validator: validator,
		logger:    logger,
		timeout:   defaultTimeout,
	}
}

// WithTimeout overrides the per-request deadline.
func (h *Handler) WithTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(request.Recovery(h.logger))
	router.Use(request.RequestID)
	router.Use(request.Logger(h.logger))
	router.Use(requesttime.Middleware)
	router.Use(metadata.ClientMetadata)
	router.Use(chimiddleware.Timeout(h.timeout))
	router.Use(chimiddleware.AllowContentType("application/json"))
	router.Use(auth.RequireAuth(h.validator, h.logger))

	router.Route("/digital-ids", func(r chi.Router) {
		r.Post("/", h.handleIssue)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/access", h.handleAccess)
		r.Put("/{id}/consent", h.handleUpdateConsent)
		r.Post("/{id}/lost", h.handleReportLost)
		r.Post("/{id}/emergency-access", h.handleEmergencyAccess)
		r.Get("/{id}/access-logs", h.handleAccessHistory)
		r.With(auth.RequireRole(h.logger, string(models.RoleAdmin))).Post("/{id}/revoke", h.handleRevoke)
	})

	router.Route("/admin/digital-ids", func(r chi.Router) {
		r.Use(auth.RequireRole(h.logger, string(models.RoleAdmin)))
		r.Post("/expire", h.handleAutoExpire)
		r.Get("/stats", h.handleStats)
		r.Get("/events", h.handleEvents)
	})

	r.Mount("/", router)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req models.IssueRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.Issue(r.Context(), caller(r), req)
	if err != nil {
		h.fail(w, r, "issue", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := caller(r)
	res, err := h.service.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get", err)
		return
	}
	// Tourists see only their own credential.
	switch p.Role {
	case models.RoleAdmin, models.RoleKiosk, models.RoleTourismDept:
	case models.RoleTourist:
		if res.SubjectID != p.ID {
			h.fail(w, r, "get", dErrors.New(dErrors.CodeForbidden, "not the credential owner"))
			return
		}
	default:
		h.fail(w, r, "get", dErrors.New(dErrors.CodeForbidden, "role may not read credential summaries"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request) {
	var req models.AccessRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.CredentialID = chi.URLParam(r, "id")
	res, err := h.service.Access(r.Context(), caller(r), req)
	if err != nil {
		h.fail(w, r, "access", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleUpdateConsent(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateConsentRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.CredentialID = chi.URLParam(r, "id")
	res, err := h.service.UpdateConsent(r.Context(), caller(r), req)
	if err != nil {
		h.fail(w, r, "update_consent", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleReportLost(w http.ResponseWriter, r *http.Request) {
	var req models.ReportLostRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.CredentialID = chi.URLParam(r, "id")
	res, err := h.service.ReportLost(r.Context(), caller(r), req)
	if err != nil {
		h.fail(w, r, "report_lost", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleEmergencyAccess(w http.ResponseWriter, r *http.Request) {
	var req models.EmergencyAccessRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.CredentialID = chi.URLParam(r, "id")
	res, err := h.service.TriggerEmergencyAccess(r.Context(), caller(r), req)
	if err != nil {
		h.fail(w, r, "emergency_access", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req models.RevokeRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.CredentialID = chi.URLParam(r, "id")
	res, err := h.service.Revoke(r.Context(), caller(r), req)
	if err != nil {
		h.fail(w, r, "revoke", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAccessHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		h.fail(w, r, "access_history", err)
		return
	}
	entries, err := h.service.AccessHistory(r.Context(), caller(r), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.fail(w, r, "access_history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"accessLogs": entries})
}

func (h *Handler) handleAutoExpire(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.AutoExpire(r.Context())
	if err != nil {
		h.fail(w, r, "auto_expire", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	since := requestcontext.Now(ctx).Add(-statsWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.fail(w, r, "stats", dErrors.New(dErrors.CodeValidation, "since must be an RFC 3339 timestamp"))
			return
		}
		since = t
	}
	top, err := intParam(r, "top")
	if err != nil {
		h.fail(w, r, "stats", err)
		return
	}
	res, err := h.service.Stats(ctx, since, top)
	if err != nil {
		h.fail(w, r, "stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		h.fail(w, r, "events", err)
		return
	}
	events, err := h.service.RecentEvents(r.Context(), models.EventType(r.URL.Query().Get("type")), limit)
	if err != nil {
		h.fail(w, r, "events", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

// decode reads a JSON body into v. An empty body leaves v zero.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (errors.Is(err, io.EOF) && r.ContentLength <= 0) {
		return true
	}
	h.logger.WarnContext(r.Context(), "invalid request body",
		"request_id", request.GetRequestID(r.Context()),
		"path", r.URL.Path,
		"error", err.Error(),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
	return false
}

// fail logs at a level matching the error class and writes the error response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	p := requestcontext.Caller(ctx)
	attrs := []any{
		"operation", op,
		"request_id", request.GetRequestID(ctx),
		"caller_id", p.ID,
		"role", p.Role,
		"error", err.Error(),
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal:
		h.logger.ErrorContext(ctx, "digital id request failed", attrs...)
	case dErrors.CodeLedgerUnavailable, dErrors.CodeTimeout:
		h.logger.WarnContext(ctx, "digital id request failed", attrs...)
	default:
		h.logger.InfoContext(ctx, "digital id request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}

func caller(r *http.Request) models.Principal {
	p := requestcontext.Caller(r.Context())
	return models.Principal{ID: p.ID, Role: models.Role(p.Role), Address: p.Address}
}

// intParam returns 0 when the query parameter is absent.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be a non-negative integer")
	}
	return n, nil
}
