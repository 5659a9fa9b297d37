// Package session orchestrates the ordered fallback chain for request
// authentication: access token, then session cookie, then refresh token.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
	"github.com/authgate/authgate/models"
	"github.com/authgate/authgate/services"
	"github.com/authgate/authgate/tokens"
)

// Source identifies which validation method produced a principal.
type Source string

const (
	SourceAccessToken   Source = "access_token"
	SourceSessionCookie Source = "session_cookie"
	SourceRefresh       Source = "refresh"
)

// TokenValidator is the slice of the token codec the validator needs.
type TokenValidator interface {
	Validate(token string, expectedType models.TokenType) (*tokens.Claims, error)
}

// SessionService is the external session/auth service collaborator. Calls
// must honor ctx cancellation; the validator never holds a lock across them.
type SessionService interface {
	ValidateSession(ctx context.Context, token string, metadata map[string]string) (*models.Principal, error)
}

// Credentials are the raw materials extracted from an inbound request.
type Credentials struct {
	AuthorizationHeader string
	SessionCookie       string
	RefreshCookie       string
	Metadata            map[string]string
}

// Fingerprint derives the cache key for a request identity.
func (c Credentials) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.AuthorizationHeader + "\x00" + c.SessionCookie + "\x00" + c.RefreshCookie))
	return hex.EncodeToString(sum[:])
}

// Result is a terminal validation success.
type Result struct {
	Principal *models.Principal
	Source    Source
	FromCache bool
}

// validationState tracks which methods have been attempted for one request,
// bounding each method to a single attempt.
type validationState struct {
	attempted map[Source]bool
}

func (s *validationState) mark(src Source) bool {
	if s.attempted[src] {
		return false
	}
	s.attempted[src] = true
	return true
}

// Validator runs the multi-stage session-validation state machine with
// per-request result caching.
type Validator struct {
	codec    TokenValidator
	sessions SessionService
	cache    *resultCache
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the validator's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
		v.cache.now = now
	}
}

// NewValidator creates a Validator. sessions may be nil, disabling the
// session-cookie fallback path.
func NewValidator(cfg config.SessionConfig, codec TokenValidator, sessions SessionService, logger *zap.Logger, opts ...Option) *Validator {
	v := &Validator{
		codec:    codec,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
	v.cache = newResultCache(cfg.CacheTTL, time.Now)
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs the fallback chain for the request's credentials. The method
// order is strict: access token, then session cookie, then refresh; each is
// attempted at most once per request. Terminal outcomes (success or expected
// failure) populate the per-request cache keyed by credential fingerprint.
func (v *Validator) Validate(ctx context.Context, creds Credentials) (*Result, *AuthError) {
	fingerprint := creds.Fingerprint()

	if cached := v.cache.get(fingerprint); cached != nil {
		if cached.authErr != nil {
			return nil, cached.authErr
		}
		return &Result{Principal: cached.principal, Source: cached.source, FromCache: true}, nil
	}

	state := &validationState{attempted: make(map[Source]bool)}
	result, authErr := v.run(ctx, creds, state)

	// Cancellation is not a terminal outcome; never cache it.
	if ctx.Err() != nil {
		v.cache.remove(fingerprint)
		return nil, errInternal
	}

	if authErr != nil {
		if authErr.HTTPStatus < 500 {
			v.cache.put(fingerprint, &cachedResult{authErr: authErr})
		}
		return nil, authErr
	}

	v.cache.put(fingerprint, &cachedResult{principal: result.Principal, source: result.Source})
	return result, nil
}

// run drives the state machine transitions.
func (v *Validator) run(ctx context.Context, creds Credentials, state *validationState) (*Result, *AuthError) {
	if creds.AuthorizationHeader == "" && creds.SessionCookie == "" && creds.RefreshCookie == "" {
		return nil, errMissingCredentials
	}

	if creds.AuthorizationHeader != "" {
		bearer, ok := parseBearer(creds.AuthorizationHeader)
		if !ok {
			// Wrong shape is distinct from bad content.
			v.logger.Warn("malformed authorization header")
			return nil, errMalformedHeader
		}

		if state.mark(SourceAccessToken) {
			claims, err := v.codec.Validate(bearer, models.TokenTypeAccess)
			switch {
			case err == nil:
				return &Result{Principal: claims.Principal(), Source: SourceAccessToken}, nil
			case errors.Is(err, tokens.ErrTokenExpired):
				// Well-formed but expired: retry with the refresh cookie,
				// never the header.
				v.logger.Debug("access token expired, trying refresh")
				return v.tryRefresh(creds, state, errSessionNotFound)
			case errors.Is(err, tokens.ErrTokenTypeMismatch):
				return nil, errTokenTypeMismatch
			default:
				v.logger.Warn("access token validation failed", zap.Error(err))
				return nil, errTokenInvalid
			}
		}
		return nil, errTokenInvalid
	}

	// No Authorization header: session cookie before refresh.
	if creds.SessionCookie != "" && v.sessions != nil && state.mark(SourceSessionCookie) {
		principal, err := v.sessions.ValidateSession(ctx, creds.SessionCookie, creds.Metadata)
		if err == nil {
			principal.TokenType = models.TokenTypeSession
			return &Result{Principal: principal, Source: SourceSessionCookie}, nil
		}
		if ctx.Err() != nil {
			return nil, errInternal
		}
		if services.IsInternalError(err) {
			v.logger.Error("session service failure", zap.Error(err))
			return nil, errInternal
		}

		fallback := errSessionNotFound
		if services.GetErrorType(err) == services.ErrorTypeSessionExpired {
			fallback = errSessionExpired
		}
		v.logger.Debug("session cookie rejected, trying refresh", zap.Error(err))
		return v.tryRefresh(creds, state, fallback)
	}

	return v.tryRefresh(creds, state, errSessionNotFound)
}

// tryRefresh is the final fallback. fallbackErr is returned when no refresh
// cookie is present, preserving the failure reason of the prior stage.
func (v *Validator) tryRefresh(creds Credentials, state *validationState, fallbackErr *AuthError) (*Result, *AuthError) {
	if creds.RefreshCookie == "" {
		return nil, fallbackErr
	}
	if !state.mark(SourceRefresh) {
		return nil, fallbackErr
	}

	claims, err := v.codec.Validate(creds.RefreshCookie, models.TokenTypeRefresh)
	switch {
	case err == nil:
		// A fresh principal derived from the refresh token. Rotation of the
		// refresh token itself is a caller-level policy decision.
		principal := claims.Principal()
		return &Result{Principal: principal, Source: SourceRefresh}, nil
	case errors.Is(err, tokens.ErrTokenExpired):
		return nil, errSessionExpired
	case errors.Is(err, tokens.ErrTokenTypeMismatch):
		return nil, errTokenTypeMismatch
	default:
		v.logger.Warn("refresh token validation failed", zap.Error(err))
		return nil, errTokenInvalid
	}
}

// parseBearer extracts the token from an 'Authorization: Bearer <token>'
// header, reporting whether the header has the required shape.
func parseBearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
