package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
	"github.com/authgate/authgate/services/csrf"
	"github.com/authgate/authgate/utils"
)

// CSRFTokenValidator is the slice of the CSRF guard the middleware needs.
type CSRFTokenValidator interface {
	Validate(token, expectedUserID string) bool
}

// CSRFMiddleware enforces the double-submit cookie pattern for unsafe HTTP
// methods on non-exempt paths.
type CSRFMiddleware struct {
	guard       CSRFTokenValidator
	cookieName  string
	headerName  string
	exemptPaths map[string]bool
	logger      *zap.Logger
}

// NewCSRFMiddleware creates a CSRFMiddleware from the CSRF configuration.
func NewCSRFMiddleware(guard CSRFTokenValidator, cfg config.CSRFConfig, logger *zap.Logger) *CSRFMiddleware {
	exempt := make(map[string]bool, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		exempt[p] = true
	}
	return &CSRFMiddleware{
		guard:       guard,
		cookieName:  cfg.CookieName,
		headerName:  cfg.HeaderName,
		exemptPaths: exempt,
		logger:      logger,
	}
}

// Protect rejects unsafe requests unless cookie and header both carry the
// token, the values match, and the token itself validates. Each distinct
// failure is logged with its own reason code; the response shape does not
// vary by reason beyond the X-CSRF-Error header.
func (m *CSRFMiddleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) || m.exemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		var cookieValue string
		if cookie, err := r.Cookie(m.cookieName); err == nil {
			cookieValue = cookie.Value
		}
		headerValue := r.Header.Get(m.headerName)

		if cookieValue == "" || headerValue == "" {
			m.logger.Warn("CSRF validation failed",
				zap.String("request_id", requestID),
				zap.String("reason", csrf.ReasonMissing))
			_ = utils.WriteCSRFForbidden(w, csrf.ReasonMissing)
			return
		}

		if cookieValue != headerValue {
			m.logger.Warn("CSRF validation failed",
				zap.String("request_id", requestID),
				zap.String("reason", csrf.ReasonMismatch))
			_ = utils.WriteCSRFForbidden(w, csrf.ReasonMismatch)
			return
		}

		// The matching value must still validate on its own merits.
		expectedUserID := ""
		if principal := GetPrincipalFromContext(ctx); principal != nil {
			expectedUserID = principal.UserID
		}
		if !m.guard.Validate(cookieValue, expectedUserID) {
			m.logger.Warn("CSRF validation failed",
				zap.String("request_id", requestID),
				zap.String("reason", csrf.ReasonInvalidOrExpired))
			_ = utils.WriteCSRFForbidden(w, csrf.ReasonInvalidOrExpired)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
