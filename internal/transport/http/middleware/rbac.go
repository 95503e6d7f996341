package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"hrleave/internal/transport/http/api"
)

type PermissionStore interface {
	HasPermission(ctx context.Context, role, permission string) (bool, error)
}

// RequirePermission lets the request through when the caller's role grants
// permission. Missing identity is 401, a missing grant 403.
func RequirePermission(permission string, store PermissionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := GetRequestID(r.Context())
			user, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
				return
			}

			allowed, err := store.HasPermission(r.Context(), user.RoleName, permission)
			if err != nil {
				slog.Warn("permission lookup failed", "role", user.RoleName, "permission", permission, "err", err)
				api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", reqID)
				return
			}
			if !allowed {
				api.FailWithDetails(w, http.StatusForbidden, "forbidden", "insufficient permissions",
					map[string]string{"permission": permission}, reqID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
