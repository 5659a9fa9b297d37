package csrf

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
)

func testGuard(opts ...Option) *Guard {
	return NewGuard(config.CSRFConfig{
		SecretKey:   "csrf-test-secret",
		MaxLifetime: time.Hour,
	}, zap.NewNop(), opts...)
}

func TestGenerateValidateRoundTrip(t *testing.T) {
	guard := testGuard()

	t.Run("anonymous token", func(t *testing.T) {
		token, err := guard.Generate("")
		require.NoError(t, err)
		assert.True(t, guard.Validate(token, ""))
	})

	t.Run("user-bound token", func(t *testing.T) {
		token, err := guard.Generate("user-123")
		require.NoError(t, err)
		assert.True(t, guard.Validate(token, "user-123"))
	})

	t.Run("tokens are unique", func(t *testing.T) {
		first, err := guard.Generate("user-123")
		require.NoError(t, err)
		second, err := guard.Generate("user-123")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})
}

func TestValidateRejectsWrongUser(t *testing.T) {
	guard := testGuard()

	token, err := guard.Generate("user-123")
	require.NoError(t, err)

	assert.False(t, guard.Validate(token, "user-456"))

	t.Run("unbound token fails a bound check", func(t *testing.T) {
		anonymous, err := guard.Generate("")
		require.NoError(t, err)
		assert.False(t, guard.Validate(anonymous, "user-123"))
	})
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := issued
	guard := testGuard(WithClock(func() time.Time { return clock }))

	token, err := guard.Generate("user-123")
	require.NoError(t, err)

	clock = issued.Add(59 * time.Minute)
	assert.True(t, guard.Validate(token, "user-123"))

	clock = issued.Add(61 * time.Minute)
	assert.False(t, guard.Validate(token, "user-123"))
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	guard := testGuard()

	token, err := guard.Generate("user-123")
	require.NoError(t, err)
	parts := strings.SplitN(token, ".", 2)
	require.Len(t, parts, 2)

	t.Run("modified payload", func(t *testing.T) {
		forged := base64.RawURLEncoding.EncodeToString([]byte("1700000000:deadbeef:user-456"))
		assert.False(t, guard.Validate(forged+"."+parts[1], "user-456"))
	})

	t.Run("modified signature", func(t *testing.T) {
		assert.False(t, guard.Validate(parts[0]+"."+strings.Repeat("0", len(parts[1])), "user-123"))
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewGuard(config.CSRFConfig{
			SecretKey:   "a-different-secret",
			MaxLifetime: time.Hour,
		}, zap.NewNop())
		assert.False(t, other.Validate(token, "user-123"))
	})
}

func TestValidateRejectsMalformedTokens(t *testing.T) {
	guard := testGuard()

	for _, token := range []string{
		"",
		"no-separator",
		"!!!.abcdef",
		base64.RawURLEncoding.EncodeToString([]byte("justonefield")) + ".sig",
		base64.RawURLEncoding.EncodeToString([]byte("notanumber:nonce")) + ".sig",
	} {
		assert.False(t, guard.Validate(token, ""), "token %q must not validate", token)
	}
}
