package auth

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	dErrors "touristid/pkg/domain-errors"
	"touristid/pkg/platform/httputil"
	request "touristid/pkg/platform/middleware/request"
	"touristid/pkg/requestcontext"
)

// Validator turns a bearer token into the calling principal.
type Validator interface {
	ValidateToken(tokenString string) (requestcontext.Principal, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// principal in the context.
func RequireAuth(validator Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			principal, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, principal)))
		})
	}
}

// RequireRole admits only callers whose role is one of roles. Must run after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := requestcontext.Caller(ctx)
			if !slices.Contains(roles, caller.Role) {
				logger.WarnContext(ctx, "forbidden - role not allowed",
					"role", caller.Role,
					"caller_id", caller.ID,
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "role "+caller.Role+" may not call this endpoint"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
