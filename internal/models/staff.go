package models

// Staff roles carried in identity-provider claims.
const (
	RoleAdmin    = "admin"
	RoleSecurity = "security"
)

// StaffClaims is the resolved identity of an authenticated caller. Core
// operations take it as an explicit argument instead of digging it out of
// the request context themselves.
type StaffClaims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

func (c StaffClaims) IsAdmin() bool    { return c.Role == RoleAdmin }
func (c StaffClaims) IsSecurity() bool { return c.Role == RoleSecurity }

// IsStaff reports whether the caller holds one of the guard-facing roles.
func (c StaffClaims) IsStaff() bool {
	return c.Role == RoleAdmin || c.Role == RoleSecurity
}

// M2MTokenResponse is the token endpoint response for the
// client-credentials flow against the identity provider.
type M2MTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// StaffUser is a user entry returned by the identity provider admin API.
type StaffUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Enabled bool   `json:"enabled"`
}
