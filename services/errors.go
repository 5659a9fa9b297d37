package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of an auth failure.
type ErrorType string

const (
	ErrorTypeMissingCredentials     ErrorType = "missing_credentials"
	ErrorTypeMalformedHeader        ErrorType = "malformed_header"
	ErrorTypeTokenExpired           ErrorType = "token_expired"
	ErrorTypeTokenInvalid           ErrorType = "token_invalid"
	ErrorTypeTokenTypeMismatch      ErrorType = "token_type_mismatch"
	ErrorTypeSessionExpired         ErrorType = "session_expired"
	ErrorTypeSessionNotFound        ErrorType = "session_not_found"
	ErrorTypeCSRFMissing            ErrorType = "csrf_missing"
	ErrorTypeCSRFMismatch           ErrorType = "csrf_mismatch"
	ErrorTypeCSRFInvalidOrExpired   ErrorType = "csrf_invalid_or_expired"
	ErrorTypeRateLimited            ErrorType = "rate_limited"
	ErrorTypeInsufficientPermission ErrorType = "insufficient_permission"
	// ErrorTypeUnknownRole never leaves the process; unknown roles simply
	// contribute no permissions.
	ErrorTypeUnknownRole ErrorType = "unknown_role"
	ErrorTypeInternal    ErrorType = "internal"
)

// DomainError represents a structured error with additional context.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is by comparing error types.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error.
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	ErrMissingCredentials     = NewDomainError(ErrorTypeMissingCredentials, "no authentication credentials provided", nil)
	ErrMalformedHeader        = NewDomainError(ErrorTypeMalformedHeader, "authorization header is not of the form 'Bearer <token>'", nil)
	ErrTokenExpired           = NewDomainError(ErrorTypeTokenExpired, "authentication token expired", nil)
	ErrTokenInvalid           = NewDomainError(ErrorTypeTokenInvalid, "invalid authentication token", nil)
	ErrTokenTypeMismatch      = NewDomainError(ErrorTypeTokenTypeMismatch, "token type does not match expected type", nil)
	ErrSessionExpired         = NewDomainError(ErrorTypeSessionExpired, "session expired", nil)
	ErrSessionNotFound        = NewDomainError(ErrorTypeSessionNotFound, "no valid session found", nil)
	ErrCSRFMissing            = NewDomainError(ErrorTypeCSRFMissing, "CSRF token missing from cookie or header", nil)
	ErrCSRFMismatch           = NewDomainError(ErrorTypeCSRFMismatch, "CSRF cookie and header values do not match", nil)
	ErrCSRFInvalidOrExpired   = NewDomainError(ErrorTypeCSRFInvalidOrExpired, "CSRF token is invalid or expired", nil)
	ErrRateLimited            = NewDomainError(ErrorTypeRateLimited, "rate limit exceeded", nil)
	ErrInsufficientPermission = NewDomainError(ErrorTypeInsufficientPermission, "insufficient permissions", nil)
	ErrInternal               = NewDomainError(ErrorTypeInternal, "internal authentication error", nil)
)

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error.
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// IsAuthenticationError reports whether the error maps to HTTP 401.
func IsAuthenticationError(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeMissingCredentials, ErrorTypeMalformedHeader, ErrorTypeTokenExpired,
		ErrorTypeTokenInvalid, ErrorTypeTokenTypeMismatch, ErrorTypeSessionExpired,
		ErrorTypeSessionNotFound:
		return true
	}
	return false
}

// IsAuthorizationError reports whether the error maps to HTTP 403.
func IsAuthorizationError(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeCSRFMissing, ErrorTypeCSRFMismatch, ErrorTypeCSRFInvalidOrExpired,
		ErrorTypeInsufficientPermission:
		return true
	}
	return false
}

// IsRateLimitError reports whether the error maps to HTTP 429.
func IsRateLimitError(err error) bool {
	return GetErrorType(err) == ErrorTypeRateLimited
}

// IsInternalError reports whether the error maps to HTTP 5xx. Errors that are
// not DomainErrors are genuinely unexpected and count as internal.
func IsInternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInternal
	}
	return true
}

// WrapInternal wraps an error as an internal error.
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
