package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
	"github.com/authgate/authgate/middleware"
	"github.com/authgate/authgate/models"
	"github.com/authgate/authgate/services/csrf"
	"github.com/authgate/authgate/services/session"
	"github.com/authgate/authgate/tokens"
)

type handlerFixture struct {
	handler *AuthHandler
	codec   *tokens.Codec
	guard   *csrf.Guard
	authCfg config.AuthConfig
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()

	authCfg := config.AuthConfig{
		Algorithm:       "HS256",
		SecretKey:       "handler-test-secret",
		Issuer:          "authgate",
		Audience:        "authgate-api",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ServiceTokenTTL: 30 * time.Minute,
	}
	csrfCfg := config.CSRFConfig{
		SecretKey:   "handler-csrf-secret",
		MaxLifetime: time.Hour,
		CookieName:  "csrf_token",
		HeaderName:  "X-CSRF-Token",
	}
	sessionCfg := config.SessionConfig{
		CookieName:        "session_token",
		RefreshCookieName: "refresh_token",
		CacheTTL:          30 * time.Second,
	}

	codec, err := tokens.NewCodec(authCfg)
	require.NoError(t, err)
	guard := csrf.NewGuard(csrfCfg, zap.NewNop())
	validator := session.NewValidator(sessionCfg, codec, nil, zap.NewNop())

	return &handlerFixture{
		handler: NewAuthHandler(codec, guard, validator, authCfg, csrfCfg, sessionCfg, false, zap.NewNop()),
		codec:   codec,
		guard:   guard,
		authCfg: authCfg,
	}
}

type dataEnvelope struct {
	Data map[string]interface{} `json:"data"`
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope dataEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestMintTokenPair(t *testing.T) {
	f := newFixture(t)

	t.Run("issues usable access and refresh tokens", func(t *testing.T) {
		body := `{"user_id":"user-123","tenant_id":"tenant-abc","roles":["user"]}`
		req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body))
		rec := httptest.NewRecorder()
		f.handler.MintTokenPair(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeData(t, rec)
		assert.Equal(t, "bearer", data["token_type"])
		assert.Equal(t, float64(3600), data["expires_in"])

		claims, err := f.codec.Validate(data["access_token"].(string), models.TokenTypeAccess)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.Subject)
		assert.Equal(t, "tenant-abc", claims.TenantID)

		cookie := findCookie(rec, "refresh_token")
		require.NotNil(t, cookie, "refresh token is delivered as a cookie")
		assert.True(t, cookie.HttpOnly)
		_, err = f.codec.Validate(cookie.Value, models.TokenTypeRefresh)
		assert.NoError(t, err)
	})

	t.Run("rejects missing user_id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"tenant_id":"t"}`))
		rec := httptest.NewRecorder()
		f.handler.MintTokenPair(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		f.handler.MintTokenPair(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	principal := &models.Principal{UserID: "user-123", TenantID: "tenant-abc", Roles: []string{"user"}}

	t.Run("valid refresh cookie yields a new access token", func(t *testing.T) {
		refresh, err := f.codec.CreateRefreshToken(principal, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/auth/token/refresh", nil)
		req.AddCookie(&http.Cookie{Name: "refresh_token", Value: refresh})
		rec := httptest.NewRecorder()
		f.handler.Refresh(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeData(t, rec)
		claims, err := f.codec.Validate(data["access_token"].(string), models.TokenTypeAccess)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.Subject)
	})

	t.Run("missing cookie is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/token/refresh", nil)
		rec := httptest.NewRecorder()
		f.handler.Refresh(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("access token in the refresh cookie is rejected", func(t *testing.T) {
		access, err := f.codec.CreateAccessToken(principal, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/auth/token/refresh", nil)
		req.AddCookie(&http.Cookie{Name: "refresh_token", Value: access})
		rec := httptest.NewRecorder()
		f.handler.Refresh(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestMintServiceToken(t *testing.T) {
	f := newFixture(t)

	body := `{"service_name":"scheduler","permissions":["extension:background_tasks"]}`
	req := httptest.NewRequest(http.MethodPost, "/auth/service-token", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.MintServiceToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	claims, err := f.codec.Validate(data["access_token"].(string), models.TokenTypeService)
	require.NoError(t, err)
	assert.Equal(t, "scheduler", claims.ServiceName)
	assert.Equal(t, "system", claims.TenantID)
}

func TestMe(t *testing.T) {
	f := newFixture(t)

	t.Run("returns the principal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req = req.WithContext(middleware.WithPrincipal(req.Context(),
			&models.Principal{UserID: "user-123", TenantID: "tenant-abc"}))
		rec := httptest.NewRecorder()
		f.handler.Me(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeData(t, rec)
		assert.Equal(t, "user-123", data["user_id"])
	})

	t.Run("unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		rec := httptest.NewRecorder()
		f.handler.Me(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCSRFToken(t *testing.T) {
	f := newFixture(t)

	t.Run("mints a bound token and cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/csrf-token", nil)
		req = req.WithContext(middleware.WithPrincipal(req.Context(),
			&models.Principal{UserID: "user-123"}))
		rec := httptest.NewRecorder()
		f.handler.CSRFToken(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeData(t, rec)
		assert.Equal(t, float64(3600), data["expires_in"])

		token := data["csrf_token"].(string)
		assert.True(t, f.guard.Validate(token, "user-123"))

		cookie := findCookie(rec, "csrf_token")
		require.NotNil(t, cookie)
		assert.Equal(t, token, cookie.Value)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/csrf-token", nil)
		rec := httptest.NewRecorder()
		f.handler.CSRFToken(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestValidateSession(t *testing.T) {
	f := newFixture(t)
	principal := &models.Principal{UserID: "user-123", TenantID: "tenant-abc", Roles: []string{"user"}}

	t.Run("valid bearer token", func(t *testing.T) {
		access, err := f.codec.CreateAccessToken(principal, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/auth/validate-session", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()
		f.handler.ValidateSession(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		data := decodeData(t, rec)
		assert.Equal(t, true, data["valid"])
		user := data["user"].(map[string]interface{})
		assert.Equal(t, "user-123", user["user_id"])
	})

	t.Run("no credentials reports invalid without failing", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/validate-session", nil)
		rec := httptest.NewRecorder()
		f.handler.ValidateSession(rec, req)

		require.Equal(t, http.StatusOK, rec.Code,
			"the report endpoint itself never rejects")
		data := decodeData(t, rec)
		assert.Equal(t, false, data["valid"])
		assert.Equal(t, float64(http.StatusUnauthorized), data["status_code"])
		assert.NotEmpty(t, data["error"])
	})
}
