package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
	"github.com/authgate/authgate/models"
	"github.com/authgate/authgate/services/audit"
	"github.com/authgate/authgate/services/session"
	"github.com/authgate/authgate/utils"
)

// extensionAPIKeyHeader is the flat shared-secret path for service-to-service calls.
const extensionAPIKeyHeader = "X-EXTENSION-API-KEY"

// SessionValidator runs the fallback validation chain for a request.
type SessionValidator interface {
	Validate(ctx context.Context, creds session.Credentials) (*session.Result, *session.AuthError)
}

// PermissionChecker resolves whether a principal satisfies a permission.
type PermissionChecker interface {
	HasPermission(p *models.Principal, permission string) bool
}

// AuthGateway extracts credentials from inbound requests, runs session
// validation, and maps typed failures to HTTP responses.
type AuthGateway struct {
	validator SessionValidator
	rbac      PermissionChecker
	auditor   audit.Sink
	cfg       config.AuthConfig
	cookies   config.SessionConfig
	logger    *zap.Logger
}

// NewAuthGateway creates an AuthGateway. The development bypass is active
// only when the configuration flag says so; it is never inferred from
// request shape.
func NewAuthGateway(
	validator SessionValidator,
	rbac PermissionChecker,
	auditor audit.Sink,
	authCfg config.AuthConfig,
	sessionCfg config.SessionConfig,
	logger *zap.Logger,
) *AuthGateway {
	if authCfg.DevBypassEnabled {
		logger.Warn("DEVELOPMENT AUTH BYPASS IS ENABLED - all requests authenticate as the bypass user",
			zap.String("bypass_user", authCfg.DevBypassUserID))
	}
	return &AuthGateway{
		validator: validator,
		rbac:      rbac,
		auditor:   auditor,
		cfg:       authCfg,
		cookies:   sessionCfg,
		logger:    logger,
	}
}

// RequireAuth authenticates the request and attaches the principal to the
// context. Failures are converted to the typed 4xx responses; nothing
// propagates as an unhandled panic past the gateway.
func (g *AuthGateway) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		if g.cfg.DevBypassEnabled {
			principal := g.devPrincipal()
			g.logger.Warn("development bypass authenticated request",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
			return
		}

		if apiKey := r.Header.Get(extensionAPIKeyHeader); apiKey != "" {
			principal, ok := g.authenticateAPIKey(apiKey)
			if !ok {
				g.deny(ctx, r, nil, "invalid_api_key")
				g.logger.Warn("invalid extension API key",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "token_invalid", "Invalid API key")
				return
			}
			g.allow(ctx, r, principal, "api_key")
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
			return
		}

		result, authErr := g.validator.Validate(ctx, g.extractCredentials(r))
		if authErr != nil {
			g.deny(ctx, r, nil, string(authErr.Type))
			g.logger.Warn("authentication failed",
				zap.String("request_id", requestID),
				zap.String("error_type", string(authErr.Type)))
			writeAuthError(w, authErr)
			return
		}

		principal := result.Principal
		g.allow(ctx, r, principal, string(result.Source))
		g.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", principal.UserID),
			zap.String("source", string(result.Source)),
			zap.Bool("from_cache", result.FromCache))

		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
	})
}

// RequirePermission enforces a permission after RequireAuth. Checks run as an
// explicit ordered chain, each emitting an audit record with its decision.
func (g *AuthGateway) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			principal := GetPrincipalFromContext(ctx)
			if principal == nil {
				g.logger.Error("principal not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "missing_credentials", "Authentication required")
				return
			}

			if !g.rbac.HasPermission(principal, permission) {
				g.deny(ctx, r, principal, "insufficient_permission")
				g.logger.Warn("permission denied",
					zap.String("request_id", requestID),
					zap.String("user_id", principal.UserID),
					zap.String("required_permission", permission))
				_ = utils.WriteForbidden(w, "insufficient_permission",
					"Insufficient permissions. Required: "+permission)
				return
			}

			g.allow(ctx, r, principal, "permission:"+permission)
			next.ServeHTTP(w, r)
		})
	}
}

// extractCredentials pulls the bearer header and the session/refresh cookies
// from the request. The refresh token is read only from its own cookie.
func (g *AuthGateway) extractCredentials(r *http.Request) session.Credentials {
	creds := session.Credentials{
		AuthorizationHeader: r.Header.Get("Authorization"),
		Metadata: map[string]string{
			"ip":         r.RemoteAddr,
			"user_agent": r.UserAgent(),
		},
	}
	if cookie, err := r.Cookie(g.cookies.CookieName); err == nil {
		creds.SessionCookie = cookie.Value
	}
	if cookie, err := r.Cookie(g.cookies.RefreshCookieName); err == nil {
		creds.RefreshCookie = cookie.Value
	}
	return creds
}

// authenticateAPIKey checks the flat shared secret in constant time and
// mints the admin service principal on match.
func (g *AuthGateway) authenticateAPIKey(apiKey string) (*models.Principal, bool) {
	if g.cfg.ExtensionAPIKey == "" {
		return nil, false
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(g.cfg.ExtensionAPIKey)) != 1 {
		return nil, false
	}
	return &models.Principal{
		UserID:      "api-key-user",
		TenantID:    "system",
		Roles:       []string{"admin"},
		Permissions: []string{"*"},
		TokenType:   models.TokenTypeAPIKey,
	}, true
}

func (g *AuthGateway) devPrincipal() *models.Principal {
	return &models.Principal{
		UserID:      g.cfg.DevBypassUserID,
		TenantID:    g.cfg.DevBypassTenantID,
		Roles:       []string{"admin", "user"},
		Permissions: []string{"extension:read", "extension:write"},
		TokenType:   models.TokenTypeDevelopment,
	}
}

func (g *AuthGateway) allow(ctx context.Context, r *http.Request, p *models.Principal, reason string) {
	record := audit.NewRecord(GetRequestIDFromContext(ctx), p, models.AuditDecisionAllow, reason, r.Method, r.URL.Path)
	if err := g.auditor.Record(ctx, record); err != nil {
		g.logger.Error("failed to record audit decision", zap.Error(err))
	}
}

func (g *AuthGateway) deny(ctx context.Context, r *http.Request, p *models.Principal, reason string) {
	record := audit.NewRecord(GetRequestIDFromContext(ctx), p, models.AuditDecisionDeny, reason, r.Method, r.URL.Path)
	if err := g.auditor.Record(ctx, record); err != nil {
		g.logger.Error("failed to record audit decision", zap.Error(err))
	}
}

// writeAuthError maps the typed triple onto the wire.
func writeAuthError(w http.ResponseWriter, authErr *session.AuthError) {
	switch authErr.HTTPStatus {
	case http.StatusUnauthorized:
		_ = utils.WriteUnauthorized(w, string(authErr.Type), authErr.UserMessage)
	case http.StatusForbidden:
		_ = utils.WriteForbidden(w, string(authErr.Type), authErr.UserMessage)
	default:
		_ = utils.WriteInternalServerError(w, authErr.UserMessage)
	}
}
