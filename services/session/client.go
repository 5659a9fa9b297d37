package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
	"github.com/authgate/authgate/models"
	"github.com/authgate/authgate/services"
)

// HTTPSessionService validates opaque session cookies against the external
// session/auth service over HTTP.
type HTTPSessionService struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPSessionService creates an HTTPSessionService from configuration.
// Returns nil when no service URL is configured, which disables the
// session-cookie fallback path.
func NewHTTPSessionService(cfg config.SessionConfig, logger *zap.Logger) *HTTPSessionService {
	if cfg.ServiceURL == "" {
		return nil
	}
	return &HTTPSessionService{
		baseURL: cfg.ServiceURL,
		client:  &http.Client{Timeout: cfg.ServiceTimeout},
		logger:  logger,
	}
}

type validateSessionRequest struct {
	SessionToken string            `json:"session_token"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type validateSessionReply struct {
	Valid bool `json:"valid"`
	User  *struct {
		UserID      string   `json:"user_id"`
		TenantID    string   `json:"tenant_id"`
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	} `json:"user,omitempty"`
	Error string `json:"error,omitempty"`
}

// ValidateSession posts the session token to the external service and maps
// the reply onto a principal. Transport and 5xx failures come back as
// internal errors so the caller can distinguish outage from rejection.
func (s *HTTPSessionService) ValidateSession(ctx context.Context, token string, metadata map[string]string) (*models.Principal, error) {
	body, err := json.Marshal(validateSessionRequest{SessionToken: token, Metadata: metadata})
	if err != nil {
		return nil, services.WrapInternal("failed to encode session validation request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/auth/validate-session", bytes.NewReader(body))
	if err != nil {
		return nil, services.WrapInternal("failed to build session validation request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, services.WrapInternal("session service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, services.WrapInternal(
			fmt.Sprintf("session service returned status %d", resp.StatusCode), nil)
	}

	var reply validateSessionReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, services.WrapInternal("failed to decode session service reply", err)
	}

	if !reply.Valid || reply.User == nil {
		if reply.Error == "session_expired" {
			return nil, services.ErrSessionExpired
		}
		return nil, services.ErrSessionNotFound
	}

	return &models.Principal{
		UserID:      reply.User.UserID,
		TenantID:    reply.User.TenantID,
		Roles:       reply.User.Roles,
		Permissions: reply.User.Permissions,
		IssuedAt:    time.Now().UTC(),
	}, nil
}
