package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
	"github.com/authgate/authgate/middleware"
	"github.com/authgate/authgate/models"
	"github.com/authgate/authgate/services/session"
	"github.com/authgate/authgate/utils"
)

// TokenIssuer mints the three token kinds.
type TokenIssuer interface {
	CreateAccessToken(p *models.Principal, ttl time.Duration) (string, error)
	CreateRefreshToken(p *models.Principal, ttl time.Duration) (string, error)
	CreateServiceToken(serviceName string, permissions []string, ttl time.Duration) (string, error)
}

// CSRFGenerator mints double-submit tokens.
type CSRFGenerator interface {
	Generate(userID string) (string, error)
}

// SessionValidator runs the fallback validation chain.
type SessionValidator interface {
	Validate(ctx context.Context, creds session.Credentials) (*session.Result, *session.AuthError)
}

// AuthHandler serves token issuance, refresh, and session inspection routes.
type AuthHandler struct {
	issuer    TokenIssuer
	csrf      CSRFGenerator
	validator SessionValidator
	authCfg   config.AuthConfig
	csrfCfg   config.CSRFConfig
	cookies   config.SessionConfig
	secure    bool
	logger    *zap.Logger
}

// NewAuthHandler creates an AuthHandler. secure controls the Secure flag on
// issued cookies (true outside development).
func NewAuthHandler(
	issuer TokenIssuer,
	csrf CSRFGenerator,
	validator SessionValidator,
	authCfg config.AuthConfig,
	csrfCfg config.CSRFConfig,
	sessionCfg config.SessionConfig,
	secure bool,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		issuer:    issuer,
		csrf:      csrf,
		validator: validator,
		authCfg:   authCfg,
		csrfCfg:   csrfCfg,
		cookies:   sessionCfg,
		secure:    secure,
		logger:    logger,
	}
}

// mintRequest is the body for POST /auth/token. The caller must already be
// authorized (service principal or admin); credential verification against
// the user store happens upstream in the external auth service.
type mintRequest struct {
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}

// tokenPairResponse is the body for successful token issuance.
type tokenPairResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// MintTokenPair handles POST /auth/token: issues an access/refresh pair for
// the given identity and sets the refresh token as an HttpOnly cookie.
func (h *AuthHandler) MintTokenPair(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "invalid request body", nil)
		return
	}
	if req.UserID == "" {
		_ = utils.WriteBadRequest(w, "user_id is required", nil)
		return
	}
	if req.TenantID == "" {
		req.TenantID = "default"
	}
	if len(req.Roles) == 0 {
		req.Roles = []string{"user"}
	}

	principal := &models.Principal{
		UserID:   req.UserID,
		TenantID: req.TenantID,
		Roles:    req.Roles,
	}

	accessToken, err := h.issuer.CreateAccessToken(principal, h.authCfg.AccessTokenTTL)
	if err != nil {
		h.logger.Error("failed to create access token",
			zap.String("request_id", requestID), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}
	refreshToken, err := h.issuer.CreateRefreshToken(principal, h.authCfg.RefreshTokenTTL)
	if err != nil {
		h.logger.Error("failed to create refresh token",
			zap.String("request_id", requestID), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	h.setCookie(w, h.cookies.RefreshCookieName, refreshToken, h.authCfg.RefreshTokenTTL)

	h.logger.Info("issued token pair",
		zap.String("request_id", requestID),
		zap.String("user_id", req.UserID),
		zap.String("tenant_id", req.TenantID))

	_ = utils.WriteOK(w, tokenPairResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(h.authCfg.AccessTokenTTL.Seconds()),
	})
}

// Refresh handles POST /auth/token/refresh: exchanges the refresh cookie for
// a new access token. The refresh token is not rotated here, and any
// still-valid access token keeps working until its natural expiry.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	cookie, err := r.Cookie(h.cookies.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		_ = utils.WriteUnauthorized(w, "session_not_found", "No refresh token")
		return
	}

	result, authErr := h.validator.Validate(r.Context(), session.Credentials{
		RefreshCookie: cookie.Value,
	})
	if authErr != nil {
		h.logger.Warn("refresh rejected",
			zap.String("request_id", requestID),
			zap.String("error_type", string(authErr.Type)))
		_ = utils.WriteUnauthorized(w, string(authErr.Type), authErr.UserMessage)
		return
	}

	accessToken, err := h.issuer.CreateAccessToken(result.Principal, h.authCfg.AccessTokenTTL)
	if err != nil {
		h.logger.Error("failed to create access token",
			zap.String("request_id", requestID), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	_ = utils.WriteOK(w, tokenPairResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(h.authCfg.AccessTokenTTL.Seconds()),
	})
}

// serviceTokenRequest is the body for POST /auth/service-token.
type serviceTokenRequest struct {
	ServiceName string   `json:"service_name"`
	Permissions []string `json:"permissions"`
}

// MintServiceToken handles POST /auth/service-token for service-to-service
// callers.
func (h *AuthHandler) MintServiceToken(w http.ResponseWriter, r *http.Request) {
	var req serviceTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "invalid request body", nil)
		return
	}
	if req.ServiceName == "" {
		_ = utils.WriteBadRequest(w, "service_name is required", nil)
		return
	}
	if len(req.Permissions) == 0 {
		req.Permissions = []string{"extension:background_tasks"}
	}

	token, err := h.issuer.CreateServiceToken(req.ServiceName, req.Permissions, h.authCfg.ServiceTokenTTL)
	if err != nil {
		h.logger.Error("failed to create service token", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	_ = utils.WriteOK(w, tokenPairResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.authCfg.ServiceTokenTTL.Seconds()),
	})
}

// Me handles GET /auth/me: returns the authenticated principal.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "missing_credentials", "Authentication required")
		return
	}
	_ = utils.WriteOK(w, principal)
}

// CSRFToken handles GET /auth/csrf-token: mints a token for the
// authenticated user, sets it as an HttpOnly cookie, and returns it so the
// client can echo it in the header.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		_ = utils.WriteUnauthorized(w, "missing_credentials", "Authentication required")
		return
	}

	token, err := h.csrf.Generate(principal.UserID)
	if err != nil {
		h.logger.Error("failed to generate CSRF token", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	h.setCookie(w, h.csrfCfg.CookieName, token, h.csrfCfg.MaxLifetime)

	_ = utils.WriteOK(w, map[string]interface{}{
		"csrf_token": token,
		"expires_in": int(h.csrfCfg.MaxLifetime.Seconds()),
	})
}

// validateSessionResponse is the body for GET /auth/validate-session.
type validateSessionResponse struct {
	Valid      bool              `json:"valid"`
	User       *models.Principal `json:"user,omitempty"`
	Error      string            `json:"error,omitempty"`
	StatusCode int               `json:"status_code,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

// ValidateSession handles GET /auth/validate-session: runs the fallback
// chain and reports the outcome without failing the request.
func (h *AuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	creds := session.Credentials{
		AuthorizationHeader: r.Header.Get("Authorization"),
	}
	if cookie, err := r.Cookie(h.cookies.CookieName); err == nil {
		creds.SessionCookie = cookie.Value
	}
	if cookie, err := r.Cookie(h.cookies.RefreshCookieName); err == nil {
		creds.RefreshCookie = cookie.Value
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	result, authErr := h.validator.Validate(r.Context(), creds)
	if authErr != nil {
		_ = utils.WriteOK(w, validateSessionResponse{
			Valid:      false,
			Error:      authErr.UserMessage,
			StatusCode: authErr.HTTPStatus,
			Timestamp:  timestamp,
		})
		return
	}

	_ = utils.WriteOK(w, validateSessionResponse{
		Valid:     true,
		User:      result.Principal,
		Timestamp: timestamp,
	})
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
