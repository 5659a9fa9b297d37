package models

import "time"

// TokenType distinguishes the three token kinds the codec issues, plus the
// synthetic kinds attached to principals that never came from a JWT.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
	TokenTypeService TokenType = "service"

	// TokenTypeSession marks principals derived from a session cookie
	// validated against the external session service.
	TokenTypeSession TokenType = "session"

	// TokenTypeAPIKey marks principals authenticated via the flat
	// X-EXTENSION-API-KEY shared secret.
	TokenTypeAPIKey TokenType = "api_key"

	// TokenTypeDevelopment marks principals minted by the development bypass.
	TokenTypeDevelopment TokenType = "development"
)

// Principal is the authenticated identity attached to a request after
// successful validation. It is immutable for the life of the request.
type Principal struct {
	UserID      string    `json:"user_id"`
	TenantID    string    `json:"tenant_id"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	TokenType   TokenType `json:"token_type"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HasRole reports whether the principal holds the given role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
