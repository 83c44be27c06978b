package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type contextKey string

const claimsKey contextKey = "staff_claims"

// Middleware verifies bearer tokens against the OIDC issuer and stores the
// resolved StaffClaims in the request context. Expired tokens are reported
// distinctly from otherwise invalid ones.
func Middleware(issuer string, log *logger.Logger) func(http.Handler) http.Handler {
	if issuer == "" {
		panic("OIDC_ISSUER env var not set")
	}

	provider, err := oidc.NewProvider(context.Background(), issuer)
	if err != nil {
		panic(fmt.Sprintf("Failed to create OIDC provider: %v", err))
	}

	// SkipClientIDCheck: tokens are minted for several frontends.
	verifier := provider.Verifier(&oidc.Config{
		SkipClientIDCheck: true,
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			idToken, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				// Log who presented the rejected token; the unverified
				// subject is good enough for the audit trail.
				subject := "unknown"
				if sub, subErr := ExtractUserIDFromJWT(rawToken); subErr == nil {
					subject = sub
				}
				if strings.Contains(err.Error(), "expired") {
					log.Warn("AUTH", fmt.Sprintf("Expired token presented by %s on %s", subject, r.URL.Path))
					http.Error(w, "token has expired", http.StatusUnauthorized)
					return
				}
				log.Warn("AUTH", fmt.Sprintf("Invalid token presented by %s on %s: %v", subject, r.URL.Path, err))
				http.Error(w, fmt.Sprintf("invalid token: %v", err), http.StatusUnauthorized)
				return
			}

			var claims struct {
				Sub         string `json:"sub"`
				Role        string `json:"role"`
				Email       string `json:"email"`
				Name        string `json:"name"`
				RealmAccess struct {
					Roles []string `json:"roles"`
				} `json:"realm_access"`
			}
			if err := idToken.Claims(&claims); err != nil {
				http.Error(w, "failed to parse claims", http.StatusUnauthorized)
				return
			}

			role := claims.Role
			if role == "" {
				for _, r := range claims.RealmAccess.Roles {
					if r == models.RoleAdmin || r == models.RoleSecurity {
						role = r
						break
					}
				}
			}

			staff := models.StaffClaims{
				Subject: claims.Sub,
				Role:    role,
				Email:   claims.Email,
				Name:    claims.Name,
			}

			ctx := context.WithValue(r.Context(), claimsKey, staff)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFrom returns the caller identity stored by Middleware.
func ClaimsFrom(ctx context.Context) (models.StaffClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(models.StaffClaims)
	return claims, ok
}

// WithClaims injects claims into a context. Used by the API-key middleware
// and by handler tests.
func WithClaims(ctx context.Context, claims models.StaffClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}
