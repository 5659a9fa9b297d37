package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteUnauthorized(rec, "token_expired", "Token expired"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "token_expired", resp.Error)
	assert.Equal(t, "Token expired", resp.Message)
}

func TestWriteUnauthorizedDefaults(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteUnauthorized(rec, "", ""))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unauthorized", resp.Error)
	assert.Equal(t, "Authentication required", resp.Message)
}

func TestWriteCSRFForbidden(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteCSRFForbidden(rec, "token_mismatch"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "token_mismatch", rec.Header().Get("X-CSRF-Error"))
}

func TestWriteTooManyRequests(t *testing.T) {
	t.Run("whole seconds", func(t *testing.T) {
		rec := httptest.NewRecorder()
		resetAt := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
		require.NoError(t, WriteTooManyRequests(rec, 9*time.Second, resetAt))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "9", rec.Header().Get("Retry-After"))

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "rate_limited", resp.Error)
		assert.Equal(t, float64(9), resp.Details["retry_after_seconds"])
		assert.Equal(t, "2025-06-01T12:00:30Z", resp.Details["reset_at"])
	})

	t.Run("sub-second rounds up to one", func(t *testing.T) {
		rec := httptest.NewRecorder()
		require.NoError(t, WriteTooManyRequests(rec, 200*time.Millisecond, time.Now()))
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})
}

func TestWriteOK(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteOK(rec, map[string]string{"hello": "world"}))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "world", data["hello"])
}
