package middleware

import (
	"net/http"
	"strings"

	"hrleave/internal/domain/auth"
)

// Auth attaches the caller from a bearer token when one is present and
// valid. Routes that need a caller enforce it through RequirePermission.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithUser(r.Context(), auth.UserContext{
				UserID:      claims.UserID,
				EmployeeID:  claims.EmployeeID,
				CandidateID: claims.CandidateID,
				RoleName:    claims.RoleName,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
