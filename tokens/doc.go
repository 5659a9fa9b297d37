// Package tokens issues and validates the three token kinds used by the
// gateway: access, refresh, and service tokens.
//
// A refresh never revokes earlier access tokens: a still-valid access token
// keeps working after a refresh mints a new one, until its natural expiry.
// Callers needing hard revocation must consult a revocation store keyed by
// jti.
package tokens
