package session

import (
	"net/http"

	"github.com/authgate/authgate/services"
)

// AuthError is the fixed terminal-failure triple carried out of the state
// machine. Expected auth failures never surface as 5xx.
type AuthError struct {
	Type        services.ErrorType `json:"error_type"`
	HTTPStatus  int                `json:"http_status"`
	UserMessage string             `json:"user_message"`
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return string(e.Type) + ": " + e.UserMessage
}

// NewAuthError builds the triple for a failure class, mapping the error type
// to its HTTP status.
func NewAuthError(errType services.ErrorType, userMessage string) *AuthError {
	status := http.StatusUnauthorized
	switch errType {
	case services.ErrorTypeCSRFMissing, services.ErrorTypeCSRFMismatch,
		services.ErrorTypeCSRFInvalidOrExpired, services.ErrorTypeInsufficientPermission:
		status = http.StatusForbidden
	case services.ErrorTypeRateLimited:
		status = http.StatusTooManyRequests
	case services.ErrorTypeInternal:
		status = http.StatusInternalServerError
	}
	return &AuthError{
		Type:        errType,
		HTTPStatus:  status,
		UserMessage: userMessage,
	}
}

var (
	errMissingCredentials = NewAuthError(services.ErrorTypeMissingCredentials,
		"Authentication required")
	errMalformedHeader = NewAuthError(services.ErrorTypeMalformedHeader,
		"Authorization header must be of the form 'Bearer <token>'")
	errTokenInvalid = NewAuthError(services.ErrorTypeTokenInvalid,
		"Invalid authentication token")
	errTokenTypeMismatch = NewAuthError(services.ErrorTypeTokenTypeMismatch,
		"Token cannot be used for this operation")
	errSessionExpired = NewAuthError(services.ErrorTypeSessionExpired,
		"Session expired, please sign in again")
	errSessionNotFound = NewAuthError(services.ErrorTypeSessionNotFound,
		"No valid session found, please sign in")
	errInternal = NewAuthError(services.ErrorTypeInternal,
		"Authentication service error")
)
