package auth

import (
	"net/http"
	"strings"

	"ms-checkin/internal/models"
)

// RegisterKeyMiddleware authenticates the staff-registration bootstrap
// endpoint with a shared x-api-key header instead of an OIDC token. The key
// decides which role the new account gets.
func RegisterKeyMiddleware(securityKey, adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("x-api-key")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing or invalid x-api-key header", http.StatusUnauthorized)
				return
			}

			key := strings.TrimPrefix(header, "Bearer ")

			var role string
			switch {
			case securityKey != "" && key == securityKey:
				role = models.RoleSecurity
			case adminKey != "" && key == adminKey:
				role = models.RoleAdmin
			default:
				http.Error(w, "invalid registration key", http.StatusUnauthorized)
				return
			}

			ctx := WithClaims(r.Context(), models.StaffClaims{Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
