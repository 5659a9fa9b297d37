package middleware

import (
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/authgate/authgate/services/ratelimit"
	"github.com/authgate/authgate/utils"
)

// RateLimitChecker is the slice of the limiter the middleware needs.
type RateLimitChecker interface {
	Allow(identifier string) ratelimit.Result
}

// RateLimitMiddleware applies sliding-window admission control per caller.
type RateLimitMiddleware struct {
	limiter RateLimitChecker
	logger  *zap.Logger
}

// NewRateLimitMiddleware creates a RateLimitMiddleware.
func NewRateLimitMiddleware(limiter RateLimitChecker, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// Limit rejects requests over the limit with 429 and a Retry-After header.
// The identifier is the authenticated user when available, the client IP
// otherwise.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identifier := clientIdentifier(r)

		result := m.limiter.Allow(identifier)
		if !result.Allowed {
			m.logger.Warn("request rate limited",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("identifier", identifier),
				zap.Duration("retry_after", result.RetryAfter))
			_ = utils.WriteTooManyRequests(w, result.RetryAfter, result.ResetAt)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
		next.ServeHTTP(w, r)
	})
}

// clientIdentifier keys the window on the principal when authenticated,
// falling back to the remote IP.
func clientIdentifier(r *http.Request) string {
	if principal := GetPrincipalFromContext(r.Context()); principal != nil {
		return "user:" + principal.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
